package services

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Detection is one furniture instance reported by the vision model, before
// any persistence. RawBox keeps the bounding box exactly as the model sent
// it; decoding happens in the ROI extractor.
type Detection struct {
	Name        string
	Description string
	RawBox      json.RawMessage
}

type detectionPayload struct {
	Name        string          `json:"name"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	BoundingBox json.RawMessage `json:"bounding_box"`
	BoundingBx  json.RawMessage `json:"boundingBox"`
	BBox        json.RawMessage `json:"bbox"`
}

func (p detectionPayload) toDetection() (Detection, bool) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = strings.TrimSpace(p.Label)
	}
	if name == "" {
		return Detection{}, false
	}
	box := p.BoundingBox
	if len(box) == 0 {
		box = p.BoundingBx
	}
	if len(box) == 0 {
		box = p.BBox
	}
	return Detection{
		Name:        name,
		Description: strings.TrimSpace(p.Description),
		RawBox:      box,
	}, true
}

// NormalizeDetections flattens the vision payload into a detection list.
// Four shapes are accepted: a bare array, an object with a "furniture"
// array, a single detection object, and the legacy "identified_furniture"
// array. Detections without a usable name are dropped. An unrecognizable
// payload is an error; the caller treats it as a failed analysis.
func NormalizeDetections(raw json.RawMessage) ([]Detection, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, fmt.Errorf("empty vision payload")
	}

	// (a) bare array
	var asArray []detectionPayload
	if err := json.Unmarshal(raw, &asArray); err == nil {
		return collectDetections(asArray), nil
	}

	var envelope struct {
		Furniture           []detectionPayload `json:"furniture"`
		IdentifiedFurniture []detectionPayload `json:"identified_furniture"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		// (b) {"furniture": [...]}
		if envelope.Furniture != nil {
			return collectDetections(envelope.Furniture), nil
		}
		// (d) legacy {"identified_furniture": [...]}
		if envelope.IdentifiedFurniture != nil {
			return collectDetections(envelope.IdentifiedFurniture), nil
		}
	}

	// (c) single detection object
	var single detectionPayload
	if err := json.Unmarshal(raw, &single); err == nil {
		if det, ok := single.toDetection(); ok {
			return []Detection{det}, nil
		}
		return nil, fmt.Errorf("vision payload object has no usable detection")
	}

	return nil, fmt.Errorf("unrecognized vision payload shape")
}

func collectDetections(payloads []detectionPayload) []Detection {
	out := make([]Detection, 0, len(payloads))
	for _, p := range payloads {
		if det, ok := p.toDetection(); ok {
			out = append(out, det)
		}
	}
	return out
}
