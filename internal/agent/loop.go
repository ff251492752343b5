package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/janus-run/janus/internal/bus"
	"github.com/janus-run/janus/internal/config"
	"github.com/janus-run/janus/internal/learner"
	"github.com/janus-run/janus/internal/logger"
	"github.com/janus-run/janus/internal/media"
	"github.com/janus-run/janus/internal/memory"
	"github.com/janus-run/janus/internal/metrics"
	"github.com/janus-run/janus/internal/providers"
	"github.com/janus-run/janus/internal/session"
	"github.com/janus-run/janus/internal/summarizer"
	"github.com/janus-run/janus/internal/tools"
	"github.com/janus-run/janus/internal/userprofile"
)

// Outcome classifies how one processing round ended (spec.md §4.10,
// testable properties).
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeError        Outcome = "error"
	OutcomeMaxIterations Outcome = "max_iterations"
)

// noOpPattern matches a system-origin reply that requires no user-visible
// delivery (spec.md §4.10 step 1: "HEARTBEAT_OK|no.?op|nothing to do|all good").
var noOpPattern = regexp.MustCompile(`(?i)^(HEARTBEAT_OK|no.?op|nothing to do|all good)`)

// contextOverflowPattern detects a provider error that should trigger
// emergency compression (spec.md §4.10 step 2, §7).
var contextOverflowPattern = regexp.MustCompile(`(?i)token|context|length|too long`)

// ProcessOptions configures one call into the agent loop (spec.md §4.10:
// "processDirect(text, opts) processes one message synchronously").
type ProcessOptions struct {
	Channel         string
	ChatID          string
	SessionKey      string
	UserMessage     string
	Media           []media.ContentPart
	Mode            Mode
	User            *bus.UserBinding
	Scope           *memory.Scope
	SystemOrigin    bool
	NoHistory       bool
	SendResponse    bool
	DefaultResponse string
	Metadata        map[string]string
	MaxIterations   int // 0 uses the configured default
}

// AgentLoop is the coordinator that turns one inbound message into one
// assistant reply through zero or more tool-use iterations (spec.md §4.10).
type AgentLoop struct {
	cfg            config.Config
	msgBus         *bus.MessageBus
	sessions       *session.Store
	registry       *providers.Registry
	contextBuilder *ContextBuilder
	toolRegistry   *tools.Registry
	profiles       *userprofile.Resolver
	summarizer     *summarizer.Summarizer
	learner        *learner.Learner
	tracker        *metrics.Tracker

	mu    sync.Mutex
	model string

	interruptsMu sync.Mutex
	interrupts   map[string][]providers.Message

	defaultChannel string
	defaultChatID  string
}

func NewAgentLoop(
	cfg config.Config,
	msgBus *bus.MessageBus,
	sessions *session.Store,
	registry *providers.Registry,
	contextBuilder *ContextBuilder,
	toolRegistry *tools.Registry,
	profiles *userprofile.Resolver,
	summ *summarizer.Summarizer,
	lrn *learner.Learner,
	tracker *metrics.Tracker,
) *AgentLoop {
	defaultChannel := "terminal"
	var defaultChatID string
	if cfg.Family.ID != "" && len(cfg.Family.GroupChatIDs) > 0 {
		defaultChannel = "telegram"
		defaultChatID = cfg.Family.GroupChatIDs[0]
	}

	return &AgentLoop{
		cfg:            cfg,
		msgBus:         msgBus,
		sessions:       sessions,
		registry:       registry,
		contextBuilder: contextBuilder,
		toolRegistry:   toolRegistry,
		profiles:       profiles,
		summarizer:     summ,
		learner:        lrn,
		tracker:        tracker,
		model:          cfg.LLM.Model,
		interrupts:     make(map[string][]providers.Message),
		defaultChannel: defaultChannel,
		defaultChatID:  defaultChatID,
	}
}

// SetModel hot-swaps the active model (spec.md §4.10 "/model hot-swap").
func (al *AgentLoop) SetModel(model string) {
	al.mu.Lock()
	defer al.mu.Unlock()
	al.model = model
}

func (al *AgentLoop) GetModel() string {
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.model
}

// Interrupt injects an extra user message into a session's pending queue,
// drained at the next iteration boundary (spec.md §4.10 "interrupt
// draining").
func (al *AgentLoop) Interrupt(sessionKey string, msg providers.Message) {
	al.interruptsMu.Lock()
	defer al.interruptsMu.Unlock()
	al.interrupts[sessionKey] = append(al.interrupts[sessionKey], msg)
}

func (al *AgentLoop) drainInterrupts(messages []providers.Message, sessionKey string) []providers.Message {
	al.interruptsMu.Lock()
	defer al.interruptsMu.Unlock()
	pending, ok := al.interrupts[sessionKey]
	if !ok || len(pending) == 0 {
		return messages
	}
	delete(al.interrupts, sessionKey)
	return append(append([]providers.Message(nil), messages...), pending...)
}

// Run consumes inbound messages until ctx is cancelled (spec.md §4.10 entry
// point (a)).
func (al *AgentLoop) Run(ctx context.Context) error {
	for {
		msg, ok := al.msgBus.ConsumeInbound(ctx)
		if !ok {
			return ctx.Err()
		}
		if _, err := al.processInbound(ctx, msg); err != nil {
			logger.ErrorCF("agent", "processing inbound message failed", map[string]interface{}{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
				"error":   err.Error(),
			})
		}
	}
}

// ProcessDirect processes one message synchronously and returns the final
// assistant text (spec.md §4.10 entry point (b): "used by child agents,
// one-shot mode, and tests").
func (al *AgentLoop) ProcessDirect(ctx context.Context, content, channel, chatID string) (string, error) {
	return al.runAgentLoop(ctx, ProcessOptions{
		Channel:     channel,
		ChatID:      chatID,
		SessionKey:  fmt.Sprintf("%s:%s", channel, chatID),
		UserMessage: content,
		Mode:        ModeFull,
	})
}

// RunSubagent implements tools.Spawner so the spawn_subagent tool can
// delegate a bounded task to a fresh iteration loop without the tools
// package importing agent.
func (al *AgentLoop) RunSubagent(ctx context.Context, prompt string, maxIterations int) (string, error) {
	return al.runAgentLoop(ctx, ProcessOptions{
		Channel:       "subagent",
		ChatID:        fmt.Sprintf("sub-%d", time.Now().UnixNano()),
		SessionKey:    fmt.Sprintf("subagent:%d", time.Now().UnixNano()),
		UserMessage:   prompt,
		Mode:          ModeMinimal,
		NoHistory:     true,
		SendResponse:  false,
		MaxIterations: maxIterations,
	})
}

func (al *AgentLoop) processInbound(ctx context.Context, msg bus.InboundMessage) (string, error) {
	mode := ModeFull
	if msg.ContextMode == "minimal" {
		mode = ModeMinimal
	}

	var scope *memory.Scope
	if msg.Scope != nil {
		scope = &memory.Scope{Kind: msg.Scope.Kind, ID: msg.Scope.ID}
	}

	opts := ProcessOptions{
		Channel:      msg.Channel,
		ChatID:       msg.ChatID,
		SessionKey:   msg.SessionKey,
		UserMessage:  msg.Content,
		Media:        msg.Media,
		Mode:         mode,
		User:         msg.User,
		Scope:        scope,
		SystemOrigin: msg.Channel == "system",
		SendResponse: true,
		Metadata:     msg.Metadata,
	}
	if opts.SessionKey == "" {
		opts.SessionKey = fmt.Sprintf("%s:%s", msg.Channel, msg.ChatID)
	}

	if model, handled := al.handleModelCommand(msg.Content); handled {
		if opts.SendResponse {
			al.msgBus.PublishOutbound(ctx, bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: model, Type: "message"})
		}
		return model, nil
	}

	return al.runAgentLoop(ctx, opts)
}

// handleModelCommand intercepts "/model <name>" before the LLM pipeline.
func (al *AgentLoop) handleModelCommand(content string) (string, bool) {
	if !strings.HasPrefix(strings.TrimSpace(content), "/model") {
		return "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(content), "/model"))
	if rest == "" {
		return fmt.Sprintf("Current model: %s", al.GetModel()), true
	}
	al.SetModel(rest)
	return fmt.Sprintf("Model set to %s", rest), true
}

// runAgentLoop implements spec.md §4.10's eleven-step per-message pipeline.
func (al *AgentLoop) runAgentLoop(ctx context.Context, opts ProcessOptions) (string, error) {
	start := time.Now()

	// 2. Resolve the user profile from the user binding.
	var profile *userprofile.Profile
	if al.profiles != nil && opts.User != nil {
		profile = al.profiles.Resolve(opts.User)
	}

	// 3. Tool context injection.
	execCtx := al.buildExecContext(opts, profile)

	// 4. Load session, build system prompt.
	var history []providers.Message
	var sessionSummary string
	if !opts.NoHistory {
		history = al.sessions.GetHistory(opts.SessionKey)
		sessionSummary = al.sessions.GetSummary(opts.SessionKey)
	}

	toolAllow, toolDeny := execCtx.ToolAllow, execCtx.ToolDeny
	var skillAllow, skillDeny []string
	var userID string
	if profile != nil {
		userID = profile.UserID
		skillAllow, skillDeny = profile.Skills.Allow, profile.Skills.Deny
	}

	systemPrompt := al.contextBuilder.BuildSystemPrompt(ctx, BuildInput{
		Mode:           opts.Mode,
		ToolRegistry:   al.toolRegistry,
		ToolAllow:      toolAllow,
		ToolDeny:       toolDeny,
		SkillAllow:     skillAllow,
		SkillDeny:      skillDeny,
		Profile:        profile,
		Scope:          opts.Scope,
		UserID:         userID,
		Channel:        opts.Channel,
		ChatID:         opts.ChatID,
		UserMessage:    opts.UserMessage,
		HasUserMsg:     opts.UserMessage != "",
		SessionSummary: sessionSummary,
	})

	messages := append([]providers.Message{{Role: "system", Content: systemPrompt}}, history...)
	messages = append(messages, providers.Message{Role: "user", Content: opts.UserMessage, ContentParts: opts.Media})

	// 5. Budget trimming.
	messages = al.trimToBudget(messages)

	// 6. Persist inbound message before any LLM call.
	if !opts.NoHistory {
		al.sessions.AddMessage(opts.SessionKey, "user", opts.UserMessage)
	}

	// 7. Iterate.
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = al.cfg.Agent.MaxIterations
	}
	finalContent, iterations, toolCalls, toolsUsed, outcome, streamed := al.runLLMIteration(ctx, messages, opts, execCtx, maxIterations)

	if finalContent == "" {
		finalContent = opts.DefaultResponse
	}

	// 8. Persist final assistant message.
	if !opts.NoHistory {
		al.sessions.AddMessage(opts.SessionKey, "assistant", finalContent)
		al.sessions.Save(opts.SessionKey)
	}

	// 9. Record execution metric (fire-and-forget).
	if al.learner != nil && !opts.NoHistory {
		go func() {
			al.learner.Record(context.Background(), learner.ExecutionRecord{
				SessionKey:  opts.SessionKey,
				TaskSummary: opts.UserMessage,
				ToolsUsed:   toolsUsed,
				Iterations:  iterations,
				ToolCalls:   toolCalls,
				DurationMs:  time.Since(start).Milliseconds(),
				Success:     outcome == OutcomeSuccess,
				Error:       string(outcome),
				CreatedAtMs: time.Now().UnixMilli(),
			})
		}()
	}

	// 10. Maybe trigger summarization asynchronously.
	if !opts.NoHistory && al.summarizer != nil {
		count := len(al.sessions.GetHistory(opts.SessionKey))
		estimatedTokens := estimateTokens(al.sessions.GetHistory(opts.SessionKey))
		threshold := al.cfg.Agent.SummarizationThreshold
		tokenThreshold := int(float64(al.cfg.Agent.TokenBudget) * 0.75)
		if count >= threshold || estimatedTokens >= tokenThreshold {
			key := opts.SessionKey
			go func() {
				if err := al.summarizer.Run(context.Background(), key); err != nil {
					logger.WarnCF("agent", "summarization failed", map[string]interface{}{"session": key, "error": err.Error()})
				}
			}()
		}
	}

	// 11. Emit outbound message, unless streaming already delivered the text.
	al.emitReply(ctx, opts, finalContent, streamed)

	return finalContent, nil
}

// emitReply implements the system-origin rewrite/suppression rule and the
// plain-channel emission otherwise (spec.md §4.10 step 1 and step 11). When
// streamed is true, runLLMIteration already delivered every chunk of
// finalContent via MessageBus.StreamTo, so this only sends the "stream_end"
// marker instead of re-publishing the full text a second time.
func (al *AgentLoop) emitReply(ctx context.Context, opts ProcessOptions, finalContent string, streamed bool) {
	if !opts.SendResponse {
		return
	}

	channel, chatID := opts.Channel, opts.ChatID
	if opts.SystemOrigin {
		if noOpPattern.MatchString(strings.TrimSpace(finalContent)) {
			return
		}
		channel, chatID = al.defaultChannel, al.defaultChatID
	}

	if streamed {
		if err := al.msgBus.StreamTo(ctx, channel, chatID, "stream_end", finalContent); err != nil {
			logger.WarnCF("agent", "stream_end delivery failed", map[string]interface{}{
				"channel": channel,
				"chat_id": chatID,
				"error":   err.Error(),
			})
		}
		return
	}

	al.msgBus.PublishOutbound(ctx, bus.OutboundMessage{
		Channel:  channel,
		ChatID:   chatID,
		Content:  finalContent,
		Type:     "message",
		Metadata: opts.Metadata,
	})
}

func (al *AgentLoop) buildExecContext(opts ProcessOptions, profile *userprofile.Profile) tools.ExecContext {
	ec := tools.ExecContext{
		WorkspaceDir:     al.cfg.Workspace.Dir,
		ExecDenyPatterns: al.cfg.Tools.ExecDenyPatterns,
		ExecTimeoutMs:    al.cfg.Tools.ExecTimeoutMS,
		MaxFileSize:      al.cfg.Tools.MaxFileSize,
		Channel:          opts.Channel,
		ChatID:           opts.ChatID,
	}
	if profile != nil {
		ec.UserID = profile.UserID
		ec.ToolAllow = profile.Tools.Allow
		ec.ToolDeny = profile.Tools.Deny
		ec.ContentPolicy = profile.ContentPolicy
	}
	return ec
}

// trimToBudget drops the oldest non-system messages until the estimated
// token count is within the configured budget (spec.md §5 budget trimming).
func (al *AgentLoop) trimToBudget(messages []providers.Message) []providers.Message {
	budget := al.cfg.Agent.TokenBudget
	if budget <= 0 || len(messages) <= 1 {
		return messages
	}
	for estimateTokens(messages) > budget && len(messages) > 2 {
		messages = append(messages[:1], messages[2:]...)
	}
	return messages
}

// estimateTokens uses the common ~4-characters-per-token heuristic.
func estimateTokens(messages []providers.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	return total
}

// compress performs emergency compression: keep the system message, drop
// the older half of the remaining messages (spec.md §4.10 step 2, §8
// "Emergency compression").
func compress(messages []providers.Message) []providers.Message {
	if len(messages) <= 1 {
		return messages
	}
	system := messages[0]
	rest := messages[1:]
	keepFrom := len(rest) / 2
	out := append([]providers.Message{system}, rest[keepFrom:]...)
	return out
}

// runLLMIteration executes the LLM call loop with tool handling (spec.md
// §4.10 "Iteration"). Returns the final content, iteration count, total
// tool-call count, the distinct tool names used, the outcome, and whether
// any of the content was already delivered via the streaming bypass.
func (al *AgentLoop) runLLMIteration(ctx context.Context, messages []providers.Message, opts ProcessOptions, execCtx tools.ExecContext, maxIterations int) (string, int, int, []string, Outcome, bool) {
	iteration := 0
	emergencyRetries := 0
	totalToolCalls := 0
	toolsUsedSet := map[string]bool{}
	var lastContent string
	streamed := false

	// A stream context exists only for an interactive, response-bound
	// destination (spec.md §4.10 step 1/step 11): system-origin messages are
	// rewritten to the default channel only after the loop finishes, so they
	// never have a stable destination to stream chunks into.
	streamCtx := al.cfg.Streaming.Enabled && opts.SendResponse && !opts.SystemOrigin &&
		opts.Channel != "" && opts.ChatID != ""

	for iteration < maxIterations {
		iteration++
		messages = al.drainInterrupts(messages, opts.SessionKey)

		toolDefs := al.toolRegistry.ToProviderDefs()
		llmOpts := map[string]interface{}{
			"max_tokens":  al.cfg.LLM.MaxTokens,
			"temperature": al.cfg.LLM.Temp,
			"model":       al.GetModel(),
		}

		var response *providers.LLMResponse
		var err error
		if streamCtx {
			response, err = al.registry.ChatStream(ctx, messages, toolDefs, "", llmOpts, func(chunk string) {
				if chunk == "" {
					return
				}
				streamed = true
				if serr := al.msgBus.StreamTo(ctx, opts.Channel, opts.ChatID, "chunk", chunk); serr != nil {
					logger.WarnCF("agent", "stream chunk delivery failed", map[string]interface{}{
						"channel": opts.Channel,
						"chat_id": opts.ChatID,
						"error":   serr.Error(),
					})
				}
			})
		} else {
			response, err = al.registry.Chat(ctx, messages, toolDefs, "", llmOpts)
		}
		if err != nil {
			if contextOverflowPattern.MatchString(err.Error()) && emergencyRetries < 2 {
				emergencyRetries++
				messages = compress(messages)
				logger.WarnCF("agent", "emergency compression triggered", map[string]interface{}{
					"attempt":     emergencyRetries,
					"non_system":  len(messages) - 1,
					"session_key": opts.SessionKey,
				})
				iteration--
				continue
			}
			if al.cfg.Agent.OnLLMError == "retry" {
				time.Sleep(time.Second)
				iteration--
				continue
			}
			if lastContent == "" {
				lastContent = fmt.Sprintf("Error: %v", err)
			}
			return lastContent, iteration, totalToolCalls, setToSlice(toolsUsedSet), OutcomeError, streamed
		}

		lastContent = response.Content
		al.recordUsage(opts, response)

		if len(response.ToolCalls) == 0 {
			return response.Content, iteration, totalToolCalls, setToSlice(toolsUsedSet), OutcomeSuccess, streamed
		}

		assistantMsg := providers.Message{Role: "assistant", Content: response.Content}
		for _, tc := range response.ToolCalls {
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, tc)
		}
		messages = append(messages, assistantMsg)
		if !opts.NoHistory {
			al.sessions.AddFullMessage(opts.SessionKey, assistantMsg)
		}

		for _, tc := range response.ToolCalls {
			totalToolCalls++
			toolsUsedSet[tc.Name] = true

			args := tc.Arguments
			if args == nil && tc.Function != nil && tc.Function.Arguments != "" {
				args = map[string]interface{}{}
				if jsonErr := json.Unmarshal([]byte(tc.Function.Arguments), &args); jsonErr != nil {
					args = map[string]interface{}{}
				}
			}
			if args == nil {
				args = map[string]interface{}{}
			}

			result := al.executeToolWithRetries(ctx, tc.Name, args, execCtx)

			content := result.ForLLM
			if content == "" && result.Err != nil {
				content = result.Err.Error()
			}
			content = tools.TruncateOutput(content)

			toolMsg := providers.Message{Role: "tool", Content: content, ToolCallID: tc.ID}
			messages = append(messages, toolMsg)
			if !opts.NoHistory {
				al.sessions.AddFullMessage(opts.SessionKey, toolMsg)
			}
		}
	}

	return fmt.Sprintf("I reached the maximum number of steps (%d) working on this. Here's where I got to:\n\n%s", maxIterations, lastContent),
		iteration, totalToolCalls, setToSlice(toolsUsedSet), OutcomeMaxIterations, streamed
}

// executeToolWithRetries retries a leading-"Error:" tool result up to
// cfg.Agent.ToolRetries times with linear 500ms*attempt backoff (spec.md
// §4.10 step 4, §7 "Tool error").
func (al *AgentLoop) executeToolWithRetries(ctx context.Context, name string, args map[string]interface{}, execCtx tools.ExecContext) *tools.ToolResult {
	retries := al.cfg.Agent.ToolRetries
	var result *tools.ToolResult
	for attempt := 0; attempt <= retries; attempt++ {
		result = al.toolRegistry.ExecuteWithContext(ctx, name, args, execCtx, nil)
		if !strings.HasPrefix(result.ForLLM, "Error:") {
			return result
		}
		if attempt < retries {
			time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
		}
	}
	return result
}

// recordUsage feeds a completed LLM call's token accounting to the metrics
// tracker, when the provider reported usage (spec.md "Supplemented
// features": token/cost tracking).
func (al *AgentLoop) recordUsage(opts ProcessOptions, response *providers.LLMResponse) {
	if al.tracker == nil || response.Usage == nil {
		return
	}
	al.tracker.Record(metrics.TokenEvent{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		SessionKey:   opts.SessionKey,
		Model:        al.GetModel(),
		InputTokens:  response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
	})
}

func setToSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
