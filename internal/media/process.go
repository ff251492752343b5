package media

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxImageSize = 15 * 1024 * 1024 // 15MB raw
	maxTextSize  = 100 * 1024       // 100KB
)

var imageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

var textExts = map[string]bool{
	".txt": true, ".md": true, ".py": true, ".go": true,
	".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".json": true, ".csv": true, ".xml": true, ".html": true,
	".css": true, ".yaml": true, ".yml": true, ".toml": true,
	".sh": true, ".bash": true, ".zsh": true, ".fish": true,
	".sql": true, ".log": true, ".diff": true, ".patch": true,
}

// ProcessFile reads a file from disk and returns a ContentPart. Images are
// base64-encoded; text files have their content inlined; everything else
// gets a placeholder description (grounded on teacher pkg/media/process.go).
func ProcessFile(path string) (*ContentPart, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	fileName := filepath.Base(path)

	if info.Size() == 0 {
		return &ContentPart{Type: "text", Text: fmt.Sprintf("[Empty file: %s]", fileName)}, nil
	}

	if mt, ok := imageExts[ext]; ok {
		if info.Size() > maxImageSize {
			return &ContentPart{Type: "text", Text: fmt.Sprintf("[Image too large to include: %s (%d bytes)]", fileName, info.Size())}, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return &ContentPart{
			Type:      "image",
			MediaType: mt,
			Data:      base64.StdEncoding.EncodeToString(data),
			FileName:  fileName,
		}, nil
	}

	if textExts[ext] {
		if info.Size() > maxTextSize {
			return &ContentPart{Type: "text", Text: fmt.Sprintf("[Text file too large to include in full: %s (%d bytes)]", fileName, info.Size())}, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return &ContentPart{Type: "text", Text: fmt.Sprintf("File: %s\n\n%s", fileName, string(data))}, nil
	}

	return &ContentPart{Type: "text", Text: fmt.Sprintf("[Binary file: %s (%d bytes, unsupported type)]", fileName, info.Size())}, nil
}
