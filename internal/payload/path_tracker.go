package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// decodeWithPath unmarshals data into v and, on failure, derives the
// JSON-pointer path the decoder had reached at the point of failure.
// encoding/json's UnmarshalTypeError and SyntaxError both carry a byte
// Offset but no path; this replays the token stream up to that offset
// to reconstruct one, standing in for serde_path_to_error (no
// equivalent exists in the Go ecosystem pack retrieved for this
// service — see DESIGN.md).
func decodeWithPath(data []byte, v any) (path string, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if decErr := dec.Decode(v); decErr != nil {
		offset := errorOffset(decErr)
		return pathAtOffset(data, offset), decErr
	}
	return "", nil
}

func errorOffset(err error) int64 {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Offset
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return syntaxErr.Offset
	}
	return 0
}

// pathAtOffset replays the token stream from the start of data,
// tracking the current container kind (object field name / array
// index) up to the byte offset where decoding failed, returning a
// "/"-joined JSON pointer into the payload.
func pathAtOffset(data []byte, offset int64) string {
	if offset <= 0 || offset > int64(len(data)) {
		return "/"
	}

	dec := json.NewDecoder(bytes.NewReader(data[:offset]))
	dec.UseNumber()

	type frame struct {
		isArray     bool
		index       int
		key         string
		awaitingKey bool
	}
	var stack []frame

	// A scalar, or a container that just closed, completes one value
	// in the enclosing frame: arrays advance their index, objects go
	// back to expecting a key.
	completeValue := func() {
		if len(stack) == 0 {
			return
		}
		top := &stack[len(stack)-1]
		if top.isArray {
			top.index++
		} else {
			top.awaitingKey = true
		}
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}

		if len(stack) > 0 {
			top := &stack[len(stack)-1]
			if !top.isArray && top.awaitingKey {
				if s, ok := tok.(string); ok {
					top.key = s
					top.awaitingKey = false
					continue
				}
			}
		}

		switch tok {
		case json.Delim('{'):
			stack = append(stack, frame{awaitingKey: true})
		case json.Delim('['):
			stack = append(stack, frame{isArray: true})
		case json.Delim('}'), json.Delim(']'):
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			completeValue()
		default:
			completeValue()
		}
	}

	if len(stack) == 0 {
		return "/"
	}

	segments := make([]string, 0, len(stack))
	for _, f := range stack {
		if f.isArray {
			segments = append(segments, strconv.Itoa(f.index))
		} else {
			segments = append(segments, f.key)
		}
	}
	return "/" + strings.Join(segments, "/")
}
