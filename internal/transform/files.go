package transform

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/n0madic/claude-chatmock/internal/types"
)

const truncationMarker = "\n... (truncated)"

// FilePolicy constrains file attachments to a root directory and a
// per-file byte budget.
type FilePolicy struct {
	Root     string
	MaxBytes int
}

// RenderFileSnippets reads each referenced file and renders it as a labeled
// fenced block. Entries are either a path string or an object with
// path/file and an optional label/name. Files that escape the root, are not
// regular files, or cannot be read are skipped.
func RenderFileSnippets(files gjson.Result, policy FilePolicy) []string {
	if !files.IsArray() {
		return nil
	}
	root, err := resolveRoot(policy.Root)
	if err != nil {
		return nil
	}

	var snippets []string
	for _, entry := range files.Array() {
		var path, label string
		switch {
		case entry.Type == gjson.String:
			path, label = entry.Str, entry.Str
		case entry.IsObject():
			path = firstString(entry.Get("path"), entry.Get("file"))
			label = firstString(entry.Get("label"), entry.Get("name"))
			if label == "" {
				label = path
			}
		}
		if path == "" {
			continue
		}
		resolved, ok := safeJoin(root, path)
		if !ok {
			continue
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			continue
		}
		if label == "" {
			label = filepath.Base(resolved)
		}
		text := strings.ToValidUTF8(string(data), "\uFFFD")
		snippets = append(snippets, "File: "+label+"\n```\n"+truncateUTF8(text, policy.MaxBytes)+"\n```")
	}
	return snippets
}

// AppendToFirstUser appends text parts to the first user message, inserting
// an empty user message at the front when there is none.
func AppendToFirstUser(messages []types.Message, texts []string) []types.Message {
	if len(texts) == 0 {
		return messages
	}
	idx := -1
	for i, m := range messages {
		if m.Role == types.RoleUser {
			idx = i
			break
		}
	}
	if idx < 0 {
		messages = append([]types.Message{{Role: types.RoleUser, Content: []types.Part{}}}, messages...)
		idx = 0
	}
	for _, t := range texts {
		messages[idx].Content = append(messages[idx].Content, types.TextPart(t))
	}
	return messages
}

func resolveRoot(root string) (string, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		root = wd
	}
	abs, err := filepath.Abs(expandHome(root))
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// safeJoin resolves target against root, following symlinks, and reports
// whether the result is a regular file inside root.
func safeJoin(root, target string) (string, bool) {
	target = expandHome(target)
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		return "", false
	}
	resolved, err = filepath.Abs(resolved)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return resolved, true
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// truncateUTF8 cuts text to at most limit bytes on a rune boundary and
// appends the truncation marker. limit <= 0 disables truncation.
func truncateUTF8(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + truncationMarker
}
