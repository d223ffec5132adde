package models

import "context"

// Chat_Model is implemented by every text provider. Stream_Chat closes both
// channels when it is done; at most one error is sent.
type Chat_Model interface {
	Chat(ctx context.Context, request Chat_Request) Result
	Stream_Chat(ctx context.Context, request Chat_Request) (<-chan string, <-chan error)
}

type Image_Model interface {
	Generate_Image(ctx context.Context, request Media_Request) (Media_Result, error)
}

type Video_Model interface {
	Generate_Video(ctx context.Context, request Media_Request) (Media_Result, error)
}
