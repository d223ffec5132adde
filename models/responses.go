package models

type Result_Kind string

const (
	Result_Text  Result_Kind = "text"
	Result_Error Result_Kind = "error"
)

// Result is the normalized outcome of a non-streaming call. Exactly one of
// Text or Err is meaningful, selected by Kind.
type Result struct {
	Kind Result_Kind     `json:"kind"`
	Text string          `json:"text,omitempty"`
	Err  *Provider_Error `json:"error,omitempty"`
}

func Text_Result(text string) Result {
	return Result{Kind: Result_Text, Text: text}
}

func Error_Result(err *Provider_Error) Result {
	return Result{Kind: Result_Error, Err: err}
}

// Media_Result references a generated asset.
type Media_Result struct {
	ImageURL string `json:"imageUrl,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
	Model    string `json:"model"`
}
