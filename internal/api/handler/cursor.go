package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	apidomain "github.com/joshuadwieczorek/ga-queue-processor/internal/api/domain"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/api/storage"
)

// DecodeJobCursor parses an opaque page cursor; an empty string is the first page
func DecodeJobCursor(cursorStr string) (*storage.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apidomain.ErrInvalidCursor, err)
	}

	decodedParts := strings.Split(string(decoded), "|")
	if len(decodedParts) != 2 {
		return nil, fmt.Errorf("%w: expected 2 parts, got %d", apidomain.ErrInvalidCursor, len(decodedParts))
	}

	var createdAt, queueID int64
	if _, err := fmt.Sscanf(decodedParts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("%w: created_at: %w", apidomain.ErrInvalidCursor, err)
	}
	if _, err := fmt.Sscanf(decodedParts[1], "%d", &queueID); err != nil {
		return nil, fmt.Errorf("%w: queue_id: %w", apidomain.ErrInvalidCursor, err)
	}

	return &storage.JobCursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		QueueID:   queueID,
	}, nil
}

func EncodeJobCursor(cursor *storage.JobCursor) string {
	cs := fmt.Sprintf("%d|%d", cursor.CreatedAt.UnixNano(), cursor.QueueID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
