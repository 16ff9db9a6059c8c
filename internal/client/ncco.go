package client

// Action is one NCCO instruction understood by the Voice API.
type Action struct {
	Action   string       `json:"action"`
	Text     string       `json:"text,omitempty"`
	Language string       `json:"language,omitempty"`
	BargeIn  bool         `json:"bargeIn,omitempty"`
	Type     []string     `json:"type,omitempty"`
	DTMF     *DTMFOptions `json:"dtmf,omitempty"`
	EventURL []string     `json:"eventUrl,omitempty"`
}

type DTMFOptions struct {
	MaxDigits    int  `json:"maxDigits"`
	TimeOut      int  `json:"timeOut"`
	SubmitOnHash bool `json:"submitOnHash"`
}

type ScriptOptions struct {
	Prompt        string
	Language      string
	InputTimeoutS int
	InputEventURL string
}

// AckScript asks the callee to press the acknowledge digit and posts the
// single collected digit to InputEventURL.
func AckScript(opts ScriptOptions) []Action {
	return []Action{
		{
			Action:   "talk",
			Text:     opts.Prompt,
			Language: opts.Language,
			BargeIn:  true,
		},
		{
			Action: "input",
			Type:   []string{"dtmf"},
			DTMF: &DTMFOptions{
				MaxDigits:    1,
				TimeOut:      opts.InputTimeoutS,
				SubmitOnHash: true,
			},
			EventURL: []string{opts.InputEventURL},
		},
	}
}

// Talk plays text once.
func Talk(text, language string) []Action {
	return []Action{{Action: "talk", Text: text, Language: language}}
}
