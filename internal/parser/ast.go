package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/sokinpui/chatdoc/model"
)

// FindCodeFences uses a markdown AST to find the fenced code blocks inside a
// block's content. Line numbers are relative to content and cover the fence
// lines themselves.
func FindCodeFences(content string) ([]model.CodeFence, error) {
	source := []byte(content)
	var fences []model.CodeFence
	root := goldmark.DefaultParser().Parse(text.NewReader(source))
	lastLine := strings.Count(content, "\n")

	lineOf := func(offset int) int {
		return bytes.Count(source[:offset], []byte("\n"))
	}

	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var fence model.CodeFence
		if fenced.Info != nil {
			fence.Lang = string(fenced.Language(source))
		}

		var body bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			body.Write(line.Value(source))
		}
		fence.Content = body.String()

		switch {
		case lines.Len() > 0:
			fence.StartLine = lineOf(lines.At(0).Start) - 1
			fence.EndLine = lineOf(lines.At(lines.Len()-1).Start) + 1
		case fenced.Info != nil:
			fence.StartLine = lineOf(fenced.Info.Segment.Start)
			fence.EndLine = fence.StartLine + 1
		default:
			return ast.WalkSkipChildren, nil
		}
		if fence.EndLine > lastLine {
			fence.EndLine = lastLine
		}

		fences = append(fences, fence)
		return ast.WalkSkipChildren, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		return nil, err
	}

	return fences, nil
}
