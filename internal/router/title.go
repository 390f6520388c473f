package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/baalimago/chatmux/internal/models"
	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	maxTitleRunes  = 60
	titleMaxTokens = 32
	titlePrompt    = "Write a title of 3 to 7 words for the conversation above. Respond with the title only, without quotes or trailing punctuation."
)

var titleCaser = cases.Title(language.Und, cases.NoLower)

// GenerateTitle asks the model for a short title of msgs. msgs is never
// modified. Any failure is returned, callers pick their own fallback.
func (r *Router) GenerateTitle(ctx context.Context, modelID string, msgs []pub_models.Message) (string, error) {
	model, err := r.catalog.Resolve(modelID)
	if err != nil {
		return "", err
	}
	sc, err := r.providers.get(model.Provider)
	if err != nil {
		return "", err
	}
	conv := titleConversation(msgs)
	if len(conv) == 0 {
		return "", errors.New("no messages to generate a title from")
	}
	conv = append(conv, pub_models.Message{Role: pub_models.RoleUser, Content: titlePrompt})
	ch, err := sc.StreamCompletions(ctx, models.Request{
		Model:     model.upstream(),
		Chat:      pub_models.Chat{Messages: conv},
		MaxTokens: titleMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to stream completions: %w", err)
	}
	text, _, err := models.CollectText(ch)
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	title := CleanTitle(text)
	if title == "" {
		return "", errors.New("model returned an empty title")
	}
	return title, nil
}

// titleConversation keeps the user and assistant text of msgs. Tool
// traffic is irrelevant to the title and some vendors reject it without
// tools on offer.
func titleConversation(msgs []pub_models.Message) []pub_models.Message {
	ret := make([]pub_models.Message, 0, len(msgs)+1)
	for _, m := range msgs {
		if m.Role != pub_models.RoleUser && m.Role != pub_models.RoleAssistant && m.Role != pub_models.RoleSystem {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		ret = append(ret, pub_models.Message{Role: m.Role, Content: m.Content})
	}
	return ret
}

// CleanTitle picks the first non-empty line of raw, strips quotes, labels
// and punctuation, title cases it and caps it at 60 runes.
func CleanTitle(raw string) string {
	var line string
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	line = strings.TrimFunc(line, isTitleNoise)
	if strings.HasPrefix(strings.ToLower(line), "title") {
		rest := strings.TrimLeft(line[len("title"):], "*_ ")
		if strings.HasPrefix(rest, ":") {
			line = strings.TrimFunc(rest[1:], isTitleNoise)
		}
	}
	line = strings.Join(strings.Fields(line), " ")
	if line == "" {
		return ""
	}
	line = titleCaser.String(line)
	runes := []rune(line)
	if len(runes) > maxTitleRunes {
		line = strings.TrimRightFunc(string(runes[:maxTitleRunes]), isTitleNoise)
	}
	return line
}

func isTitleNoise(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}
