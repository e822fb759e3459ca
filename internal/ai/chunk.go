package ai

import (
	"encoding/json"
	"iter"
)

// Chunk is the envelope framing one unit of a streamed response.
type Chunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func Fragment(text string) Chunk { return Chunk{Response: text} }

// Final marks a successful end of stream.
func Final() Chunk { return Chunk{Done: true} }

// Failure ends a stream with an error message.
func Failure(msg string) Chunk { return Chunk{Response: msg, Done: true} }

// Encode frames a chunk as a server-sent event line.
func Encode(c Chunk) []byte {
	b, _ := json.Marshal(c)
	out := make([]byte, 0, len(b)+8)
	out = append(out, "data: "...)
	out = append(out, b...)
	return append(out, '\n', '\n')
}

// UntilDone relays seq up to and including its first terminal chunk. If seq
// finishes without one, a terminal failure is appended.
func UntilDone(seq iter.Seq[Chunk]) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		for c := range seq {
			if !yield(c) {
				return
			}
			if c.Done {
				return
			}
		}
		yield(Failure("stream ended before completion"))
	}
}
