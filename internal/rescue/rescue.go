// Package rescue synthesizes a tool call from XML-invoke-style text that
// a model emitted instead of a native tool call, grounded on the
// original's simple <invoke name="...">{...}</invoke> scanner.
package rescue

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Result is a synthesized tool call ready to be turned into a canon.ToolCall
// by the caller (ingress or projector), which is also responsible for
// running it through jsonrepair.
type Result struct {
	Name      string
	ArgsJSON  string
	CallID    string
}

// Detect looks for the first <invoke name="...">...</invoke> region in
// text and, if found, returns a synthesized call. It returns ok=false if
// no well-formed invoke region is present.
func Detect(text string) (Result, bool) {
	if !strings.Contains(text, "<invoke") || !strings.Contains(text, "</invoke>") {
		return Result{}, false
	}

	start := strings.Index(text, "<invoke")
	const endTag = "</invoke>"
	endRel := strings.Index(text[start:], endTag)
	if endRel < 0 {
		return Result{}, false
	}
	end := start + endRel + len(endTag)
	tagContent := text[start:end]

	nameStart := strings.Index(tagContent, `name="`)
	if nameStart < 0 {
		return Result{}, false
	}
	nameStart += len(`name="`)
	nameEndRel := strings.Index(tagContent[nameStart:], `"`)
	if nameEndRel < 0 {
		return Result{}, false
	}
	name := tagContent[nameStart : nameStart+nameEndRel]

	bodyStartRel := strings.Index(tagContent, ">")
	if bodyStartRel < 0 {
		return Result{}, false
	}
	bodyStart := bodyStartRel + 1
	bodyEnd := strings.Index(tagContent, endTag)
	if bodyEnd < 0 || bodyEnd < bodyStart {
		return Result{}, false
	}
	body := strings.TrimSpace(tagContent[bodyStart:bodyEnd])
	if body == "" {
		body = "{}"
	}

	id := fmt.Sprintf("call_%s", uuid.New().String()[:8])
	return Result{Name: name, ArgsJSON: body, CallID: id}, true
}
