package gate

import (
	"context"
	"testing"
	"time"
)

func TestMatchesOnlyExecTool(t *testing.T) {
	g := New([]string{"rm -rf"}, nil, time.Second)
	if g.Matches("read_file", map[string]interface{}{"command": "rm -rf /"}) {
		t.Fatal("non-exec tool should never match")
	}
	if !g.Matches("exec", map[string]interface{}{"command": "rm -rf /tmp/x"}) {
		t.Fatal("expected exec command to match destructive pattern")
	}
	if g.Matches("exec", map[string]interface{}{"command": "ls -la"}) {
		t.Fatal("benign command should not match")
	}
}

func TestConfirmDefaultsFalseOnTimeout(t *testing.T) {
	slow := ConfirmerFunc(func(ctx context.Context, toolName string, args map[string]interface{}) bool {
		<-ctx.Done()
		return true // would approve, but only after the gate's timeout fires
	})
	g := New(nil, slow, 20*time.Millisecond)
	if g.Confirm(context.Background(), "exec", nil) {
		t.Fatal("expected confirm to default to false on timeout")
	}
}

func TestConfirmHonorsApproval(t *testing.T) {
	approve := ConfirmerFunc(func(ctx context.Context, toolName string, args map[string]interface{}) bool {
		return true
	})
	g := New(nil, approve, time.Second)
	if !g.Confirm(context.Background(), "exec", nil) {
		t.Fatal("expected confirm to return true")
	}
}
