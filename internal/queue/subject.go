package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/wlockwood/lits/internal/models"
)

var errEmptyTagRequest = errors.New("tag request has no image or names")

func TagSubject(imageID uuid.UUID) string {
	return TagsSubjectBase + "." + imageID.String()
}

func MatchSubject(imageID uuid.UUID) string {
	return MatchesSubjectBase + "." + imageID.String()
}

func tagMsgID(req models.TagRequest) string {
	names := append([]string(nil), req.Names...)
	sort.Strings(names)
	return req.ImageID.String() + ":" + strings.Join(names, "\x1f")
}

// DecodeTagRequest parses and checks a message from the TAGS stream.
func DecodeTagRequest(data []byte) (models.TagRequest, error) {
	var req models.TagRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode tag request: %w", err)
	}
	if req.ImageID == uuid.Nil || req.Path == "" || len(req.Names) == 0 {
		return req, errEmptyTagRequest
	}
	return req, nil
}

func DecodeMatchEvent(data []byte) (models.MatchEvent, error) {
	var ev models.MatchEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode match event: %w", err)
	}
	return ev, nil
}
