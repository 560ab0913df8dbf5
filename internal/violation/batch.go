package violation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInput marks a malformed or unreadable detection batch. It is fatal for a run.
var ErrInput = errors.New("input failure")

// batchSchema is the JSON Schema for a detector batch. Detection objects may
// carry extra detector metadata; only "type" is required.
const batchSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "SafeOps detection batch",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["frame_id", "detections"],
    "properties": {
      "frame_id": {"type": "string", "minLength": 1, "pattern": "^[^\\r\\n\\]]+$"},
      "detections": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["type"],
          "properties": {
            "type": {"type": "string", "minLength": 1},
            "confidence": {"type": "number", "minimum": 0, "maximum": 1},
            "label": {"type": "string"},
            "bbox": {
              "type": "object",
              "required": ["x1", "y1", "x2", "y2"],
              "properties": {
                "x1": {"type": "number"},
                "y1": {"type": "number"},
                "x2": {"type": "number"},
                "y2": {"type": "number"}
              }
            }
          }
        }
      }
    }
  }
}`

var batchSchemaLoader = gojsonschema.NewStringLoader(batchSchema)

// LoadBatchFile reads and validates a detection batch from path.
func LoadBatchFile(path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening batch %s: %v", ErrInput, path, err)
	}
	defer f.Close()
	return LoadBatch(f)
}

// LoadBatch reads a detection batch, validates it against the batch schema
// and checks frame id uniqueness. Any failure wraps ErrInput.
func LoadBatch(r io.Reader) (Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading batch: %v", ErrInput, err)
	}

	result, err := gojsonschema.Validate(batchSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: batch is not valid JSON: %v", ErrInput, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}
		return nil, fmt.Errorf("%w: batch schema errors: %s", ErrInput, strings.Join(msgs, "; "))
	}

	var batch Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("%w: decoding batch: %v", ErrInput, err)
	}

	seen := make(map[string]struct{}, len(batch))
	for _, f := range batch {
		if _, dup := seen[f.FrameID]; dup {
			return nil, fmt.Errorf("%w: duplicate frame_id %q in batch", ErrInput, f.FrameID)
		}
		seen[f.FrameID] = struct{}{}
	}
	return batch, nil
}
