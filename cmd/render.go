package cmd

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/avaestate/ava-agent/internal/agent/model"
)

var (
	accent = lipgloss.Color("#0E7C86")
	muted  = lipgloss.Color("#8A8F98")

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(accent)
	userStyle     = lipgloss.NewStyle().Bold(true)
	replyStyle    = lipgloss.NewStyle().PaddingLeft(2).BorderStyle(lipgloss.NormalBorder()).BorderLeft(true).BorderForeground(accent)
	metaStyle     = lipgloss.NewStyle().Foreground(muted)
	cardStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#2E7D32"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C62828")).Bold(true)
	workflowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(accent).Padding(0, 1)
)

// renderTurn formats the outcome of a turn: workflow, reply, cards and the
// voice note when one was produced.
func renderTurn(s *model.ConversationState, audioPath string) string {
	var b strings.Builder

	workflow := s.Workflow
	if workflow == "" {
		workflow = model.WorkflowConversation
	}
	b.WriteString(workflowStyle.Render(workflow))
	b.WriteByte('\n')

	if reply, ok := s.LastReply(); ok {
		b.WriteString(replyStyle.Render(reply.Content))
		b.WriteByte('\n')
	}
	for _, c := range s.Cards {
		line := fmt.Sprintf("✓ %s card sent: %s", c.Kind, c.ID)
		if c.Name != "" {
			line += " (" + c.Name + ")"
		}
		b.WriteString(cardStyle.Render(line))
		b.WriteByte('\n')
	}
	if len(s.AudioBuffer) > 0 {
		line := fmt.Sprintf("voice note: %s %s", humanize.Bytes(uint64(len(s.AudioBuffer))), s.AudioMIME)
		if audioPath != "" {
			line += " → " + audioPath
		}
		b.WriteString(metaStyle.Render(line))
		b.WriteByte('\n')
	}
	return b.String()
}

// saveAudio writes the voice reply into dir and returns its path. Nothing is
// written when dir is empty or the turn produced no audio.
func saveAudio(dir, thread string, s *model.ConversationState, now time.Time) (string, error) {
	if dir == "" || len(s.AudioBuffer) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	ext := ".wav"
	if exts, _ := mime.ExtensionsByType(s.AudioMIME); len(exts) > 0 {
		ext = exts[0]
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s%s", thread, now.UTC().Format("20060102T150405"), ext))
	if err := os.WriteFile(path, s.AudioBuffer, 0o644); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	return path, nil
}

// voice note formats missing from the standard MIME table
var audioTypes = map[string]string{
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".amr":  "audio/amr",
}

// readMedia loads a file and guesses its MIME type from the extension, then
// from the content.
func readMedia(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	ext := strings.ToLower(filepath.Ext(path))
	typ := audioTypes[ext]
	if typ == "" {
		typ = mime.TypeByExtension(ext)
	}
	if typ == "" {
		typ = http.DetectContentType(data)
	}
	if mt, _, err := mime.ParseMediaType(typ); err == nil {
		typ = mt
	}
	return data, typ, nil
}
