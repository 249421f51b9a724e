package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"
)

const (
	MaxDuration      = 60 * time.Second
	MaxFileSize      = 5 * 1024 * 1024
	AllowedExtension = ".wav"
	DefaultLanguage  = "en-US"
)

var (
	ErrInvalidAudio  = errors.New("invalid audio")
	ErrAudioTooLarge = errors.New("audio file too large")
	ErrAudioTooLong  = errors.New("audio longer than the allowed duration")
)

type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
}

// Transcriber turns a recorded WAV clip into chat text.
type Transcriber struct {
	client  recognizer
	closer  func() error
	convert func(ctx context.Context, in []byte) ([]byte, error)
	logger  *zap.Logger
}

func NewTranscriber(ctx context.Context, credentialsFile string, logger *zap.Logger) (*Transcriber, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize speech client: %w", err)
	}
	return &Transcriber{client: client, closer: client.Close, convert: convertWithFFmpeg, logger: logger}, nil
}

func (t *Transcriber) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer()
}

// Transcribe returns the recognized text of audio, joined across results.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if len(audio) > MaxFileSize {
		return "", ErrAudioTooLarge
	}
	if language == "" {
		language = DefaultLanguage
	}

	header, err := parseWaveHeader(audio)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	if !header.recognizable() {
		t.logger.Debug("converting audio",
			zap.Uint16("channels", header.NumChannels), zap.Uint32("sampleRate", header.SampleRate))
		if audio, err = t.convert(ctx, audio); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidAudio, err)
		}
		if header, err = parseWaveHeader(audio); err != nil {
			return "", fmt.Errorf("%w: converted: %v", ErrInvalidAudio, err)
		}
	}
	if header.duration() > MaxDuration {
		return "", ErrAudioTooLong
	}

	resp, err := t.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:          speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:   targetSampleRate,
			LanguageCode:      language,
			AudioChannelCount: 1,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", fmt.Errorf("speech recognition failed: %w", err)
	}
	return joinResults(resp), nil
}

func joinResults(resp *speechpb.RecognizeResponse) string {
	var transcript strings.Builder
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		transcript.WriteString(alts[0].GetTranscript())
		transcript.WriteString(" ")
	}
	return strings.TrimSpace(transcript.String())
}

// convertWithFFmpeg resamples to 16 kHz mono 16-bit PCM.
func convertWithFFmpeg(ctx context.Context, in []byte) ([]byte, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in system PATH: %w", err)
	}

	input, err := os.CreateTemp("", "audio-*.wav")
	if err != nil {
		return nil, err
	}
	defer os.Remove(input.Name())
	defer input.Close()
	if _, err := input.Write(in); err != nil {
		return nil, err
	}

	output, err := os.CreateTemp("", "converted-*.wav")
	if err != nil {
		return nil, err
	}
	defer os.Remove(output.Name())
	output.Close()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", input.Name(),
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		output.Name(),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg conversion failed: %s", stderr.String())
	}
	return os.ReadFile(output.Name())
}
