package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"textadapt/pkg/ai"
	"textadapt/pkg/domain"
)

const rewriteFunctionName = "submit_simplified_paragraphs"

// Rewriter is the rewrite oracle adapter. The returned paragraphs have the
// same length, ids and order as the input.
type Rewriter interface {
	Rewrite(ctx context.Context, paragraphs []domain.Paragraph, g Guidelines) ([]domain.Paragraph, error)
}

// OracleRewriter adapts a structured LLM generator to Rewriter.
type OracleRewriter struct {
	generator ai.StructuredGenerator
}

func NewOracleRewriter(generator ai.StructuredGenerator) *OracleRewriter {
	return &OracleRewriter{generator: generator}
}

var rewriteFunction = ai.FunctionSpec{
	Name:        rewriteFunctionName,
	Description: "읽기 쉽게 다시 쓴 문단들을 입력과 같은 id와 순서로 제출합니다.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"simplified_paragraphs": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":   map[string]any{"type": "integer"},
						"text": map[string]any{"type": "string"},
					},
					"required": []string{"id", "text"},
				},
			},
		},
		"required": []string{"simplified_paragraphs"},
	},
}

type rewriteArgs struct {
	SimplifiedParagraphs []struct {
		ID   *int    `json:"id"`
		Text *string `json:"text"`
	} `json:"simplified_paragraphs"`
}

// Rewrite calls the oracle and enforces paragraph identity preservation.
func (r *OracleRewriter) Rewrite(ctx context.Context, paragraphs []domain.Paragraph, g Guidelines) ([]domain.Paragraph, error) {
	userPrompt, err := json.Marshal(map[string]any{"paragraphs": paragraphs})
	if err != nil {
		return nil, newError(KindInternal, "encode paragraphs", err)
	}
	raw, err := r.generator.GenerateStructured(ctx, g.SystemPrompt(), string(userPrompt), rewriteFunction)
	if err != nil {
		if errors.Is(err, ai.ErrMalformedResponse) {
			return nil, newError(KindOracleMalformedResponse, "rewrite oracle returned a malformed response", err)
		}
		return nil, newError(KindOracleUnavailable, "rewrite oracle unavailable", err)
	}
	out, err := decodeRewrite(raw, paragraphs)
	if err != nil {
		return nil, newError(KindOracleMalformedResponse, "rewrite oracle returned a malformed response", err)
	}
	return out, nil
}

func decodeRewrite(raw json.RawMessage, input []domain.Paragraph) ([]domain.Paragraph, error) {
	var args rewriteArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if len(args.SimplifiedParagraphs) != len(input) {
		return nil, fmt.Errorf("expected %d paragraphs, got %d", len(input), len(args.SimplifiedParagraphs))
	}
	out := make([]domain.Paragraph, len(input))
	for i, p := range args.SimplifiedParagraphs {
		if p.ID == nil || p.Text == nil {
			return nil, fmt.Errorf("paragraph %d is missing id or text", i)
		}
		if *p.ID != input[i].ID {
			return nil, fmt.Errorf("paragraph %d has id %d, want %d", i, *p.ID, input[i].ID)
		}
		text := stripMarkup(*p.Text)
		if text == "" {
			return nil, fmt.Errorf("paragraph %d is empty", *p.ID)
		}
		out[i] = domain.Paragraph{ID: *p.ID, Text: text}
	}
	return out, nil
}

// stripMarkup removes HTML tags models sometimes wrap around text. Text that
// only looks like markup, such as "x<y", is kept as is.
func stripMarkup(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "<") {
		return html.UnescapeString(s)
	}
	if !isMarkup(s) {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("br").ReplaceWithHtml("\n")
	return strings.TrimSpace(doc.Text())
}

var voidElements = map[atom.Atom]bool{
	atom.Br: true, atom.Hr: true, atom.Img: true, atom.Wbr: true,
}

// isMarkup reports whether s tokenizes completely into text and balanced,
// well-formed tags of known HTML elements.
func isMarkup(s string) bool {
	z := html.NewTokenizer(strings.NewReader(s))
	var open []atom.Atom
	consumed, tags := 0, 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return errors.Is(z.Err(), io.EOF) && consumed == len(s) && tags > 0 && len(open) == 0
		}
		raw := z.Raw()
		consumed += len(raw)
		switch tt {
		case html.TextToken:
			continue
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
		default:
			return false
		}
		name, _ := z.TagName()
		a := atom.Lookup(name)
		if a == 0 || !bytes.HasSuffix(raw, []byte(">")) {
			return false
		}
		tags++
		switch {
		case tt == html.SelfClosingTagToken || voidElements[a]:
			if tt == html.EndTagToken {
				return false
			}
		case tt == html.StartTagToken:
			open = append(open, a)
		default:
			if len(open) == 0 || open[len(open)-1] != a {
				return false
			}
			open = open[:len(open)-1]
		}
	}
}
