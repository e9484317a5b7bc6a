package openai

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// MaxTranscriptionBytes is the upload limit of the transcription endpoint.
const MaxTranscriptionBytes = 25 << 20

// Transcriber is an extraction step that turns audio and video into text with Whisper.
type Transcriber struct {
	client *Client
}

func NewTranscriber(client *Client) *Transcriber {
	return &Transcriber{client: client}
}

func (t *Transcriber) Name() string {
	return domain.MethodWhisper
}

func (t *Transcriber) Supports(file *domain.File) bool {
	return file.Kind == domain.KindAudio || file.Kind == domain.KindVideo
}

func (t *Transcriber) Extract(ctx context.Context, file *domain.File, data []byte) (domain.Extraction, error) {
	if len(data) > MaxTranscriptionBytes {
		return domain.Extraction{}, fmt.Errorf("media is %d bytes, transcription limit is %d", len(data), MaxTranscriptionBytes)
	}

	name := file.OriginalName
	if filepath.Ext(name) == "" {
		name += ".mp4"
	}

	var resp struct {
		Text string `json:"text"`
	}
	fields := map[string]string{
		"model":           t.client.transcribeModel,
		"response_format": "json",
	}
	if err := t.client.postMultipart(ctx, "/audio/transcriptions", fields, "file", name, data, &resp, "transcribe"); err != nil {
		return domain.Extraction{}, err
	}
	return domain.Extraction{Text: resp.Text, Method: domain.MethodWhisper}, nil
}
