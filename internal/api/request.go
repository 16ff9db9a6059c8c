package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/LeventeLantos/automatic-calling/internal/model"
	"github.com/LeventeLantos/automatic-calling/internal/phone"
	"github.com/LeventeLantos/automatic-calling/internal/queue"
)

const (
	maxToLen   = 120
	maxTextLen = 660
	minLoop    = 1
	maxLoop    = 10

	defaultLoop       = 3
	defaultRoundRobin = true

	maxBodyBytes = 64 << 10
)

type triggerBody struct {
	To         *string `json:"to"`
	Text       *string `json:"text"`
	Loop       *int    `json:"loop"`
	RoundRobin *bool   `json:"round_robin"`
}

type inputBody struct {
	DTMF *struct {
		Digits   *string `json:"digits"`
		TimedOut bool    `json:"timed_out"`
	} `json:"dtmf"`
}

// parseTrigger reads the dispatch parameters. Query parameters win when both
// to and text are present there, since some monitoring tools can only set
// the URL and still post an unrelated body.
func parseTrigger(r *http.Request) (model.CallParams, error) {
	q := r.URL.Query()
	if q.Get("to") != "" && q.Get("text") != "" {
		return paramsFromQuery(q.Get("to"), q.Get("text"), q.Get("loop"), q.Get("round_robin"))
	}

	body, err := readBody(r)
	if err != nil {
		return model.CallParams{}, validationError("request body could not be read", nil)
	}

	var tb triggerBody
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &tb); err != nil {
			return model.CallParams{}, validationError(fmt.Sprintf("request body is not a valid dispatch object: %v", err), nil)
		}
	}
	if tb.To == nil || tb.Text == nil {
		return model.CallParams{}, requiredError()
	}

	params := model.CallParams{
		To:         *tb.To,
		Text:       *tb.Text,
		Loop:       defaultLoop,
		RoundRobin: defaultRoundRobin,
	}
	if tb.Loop != nil {
		params.Loop = *tb.Loop
	}
	if tb.RoundRobin != nil {
		params.RoundRobin = *tb.RoundRobin
	}
	return params, validateParams(params)
}

func paramsFromQuery(to, text, loopRaw, roundRobinRaw string) (model.CallParams, error) {
	params := model.CallParams{
		To:         to,
		Text:       text,
		Loop:       defaultLoop,
		RoundRobin: defaultRoundRobin,
	}

	if loopRaw != "" {
		loop, err := strconv.Atoi(loopRaw)
		if err != nil {
			return model.CallParams{}, validationError(fmt.Sprintf("loop must be an integer: %q", loopRaw), nil)
		}
		params.Loop = loop
	}
	if roundRobinRaw != "" {
		rr, ok := parseBool(roundRobinRaw)
		if !ok {
			return model.CallParams{}, validationError(fmt.Sprintf("round_robin must be a boolean: %q", roundRobinRaw), nil)
		}
		params.RoundRobin = rr
	}
	return params, validateParams(params)
}

func validateParams(p model.CallParams) error {
	if p.To == "" || p.Text == "" {
		return requiredError()
	}

	var problems []string
	if utf8.RuneCountInString(p.To) > maxToLen {
		problems = append(problems, fmt.Sprintf("to must be at most %d characters", maxToLen))
	}
	if utf8.RuneCountInString(p.Text) > maxTextLen {
		problems = append(problems, fmt.Sprintf("text must be at most %d characters", maxTextLen))
	}
	if p.Loop < minLoop || p.Loop > maxLoop {
		problems = append(problems, fmt.Sprintf("loop must be between %d and %d", minLoop, maxLoop))
	}
	if len(problems) > 0 {
		return validationError(strings.Join(problems, "; "), nil)
	}

	if invalid := phone.Invalid(queue.Split(p.To)); len(invalid) > 0 {
		return validationError(
			fmt.Sprintf("invalid phone numbers, please check them: %s", strings.Join(invalid, ", ")),
			map[string]any{"invalid_numbers": invalid},
		)
	}
	return nil
}

func requiredError() error {
	return validationError("to and text parameters are required", map[string]any{
		"required": []string{"to", "text"},
	})
}

// parseDigits returns the collected touch-tone digits, failing when the
// payload lacks the dtmf.digits structure.
func parseDigits(r *http.Request) (string, error) {
	body, err := readBody(r)
	if err != nil {
		return "", inputError("input error: body could not be read")
	}

	var ib inputBody
	if err := json.Unmarshal(body, &ib); err != nil || ib.DTMF == nil || ib.DTMF.Digits == nil {
		return "", inputError(fmt.Sprintf("input error: %s", strings.TrimSpace(string(body))))
	}
	return *ib.DTMF.Digits, nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, true
	case "0", "false", "f", "no", "n", "off":
		return false, true
	}
	return false, false
}
