package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/observability"
)

var (
	// ErrAttachmentRequired indicates the upload carried no file.
	ErrAttachmentRequired = errors.New("file is required")
	// ErrAttachmentTooLarge indicates the payload exceeded the configured limit.
	ErrAttachmentTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrAttachmentTypeNotAllowed indicates the sniffed MIME type is not permitted.
	ErrAttachmentTypeNotAllowed = errors.New("file type not allowed")
	// ErrAttachmentsUnavailable indicates no file storage is configured.
	ErrAttachmentsUnavailable = errors.New("attachments are not configured")
)

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// AttachmentService validates and stores files shared in chat.
type AttachmentService interface {
	Upload(ctx context.Context, file *multipart.FileHeader) (dto.AttachmentPayload, error)
}

type attachmentService struct {
	storage FileStorage
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
}

// NewAttachmentService constructs an attachment service. A nil storage
// rejects every upload with ErrAttachmentsUnavailable.
func NewAttachmentService(storage FileStorage, maxSizeMB int, logger zerolog.Logger) AttachmentService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &attachmentService{
		storage: storage,
		logger:  logger.With().Str("component", "attachment_service").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/noah-isme/studyquest-api/internal/service/attachment"),
	}
}

func (s *attachmentService) Upload(ctx context.Context, file *multipart.FileHeader) (dto.AttachmentPayload, error) {
	ctx, span := s.tracer.Start(ctx, "attachment.store")
	defer span.End()

	span.SetAttributes(attribute.Int64("attachment.max_bytes", s.maxSize))
	start := time.Now()
	defer func() {
		observability.AttachmentLatency().Observe(time.Since(start).Seconds())
	}()

	if s.storage == nil {
		return dto.AttachmentPayload{}, ErrAttachmentsUnavailable
	}
	if file == nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.AttachmentPayload{}, ErrAttachmentRequired
	}
	span.SetAttributes(
		attribute.String("attachment.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("attachment.request_size", file.Size),
	)

	if file.Size > s.maxSize {
		return dto.AttachmentPayload{}, s.reject(span, "size", ErrAttachmentTooLarge)
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return dto.AttachmentPayload{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return dto.AttachmentPayload{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		return dto.AttachmentPayload{}, s.reject(span, "size", ErrAttachmentTooLarge)
	}

	detected := normalizeMime(mimetype.Detect(buf.Bytes()).String())
	span.SetAttributes(attribute.String("attachment.detected_mime", detected))
	if !isAllowedAttachment(detected) {
		return dto.AttachmentPayload{}, s.reject(span, "type", ErrAttachmentTypeNotAllowed)
	}

	name := sanitizeFileName(file.Filename)
	url, err := s.storage.Upload(ctx, name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		observability.AttachmentUploads().WithLabelValues("storage_failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.AttachmentPayload{}, fmt.Errorf("store attachment: %w", err)
	}

	observability.AttachmentUploads().WithLabelValues("stored").Inc()
	span.SetStatus(codes.Ok, "stored")
	s.logger.Debug().Str("name", name).Str("mime", detected).Msg("attachment stored")

	return dto.AttachmentPayload{
		URL:       url,
		Name:      name,
		MimeType:  detected,
		SizeBytes: int64(buf.Len()),
	}, nil
}

func (s *attachmentService) reject(span trace.Span, reason string, err error) error {
	observability.AttachmentUploads().WithLabelValues("rejected_" + reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("attachment-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}

// normalizeMime drops MIME parameters such as charset.
func normalizeMime(m string) string {
	lower := strings.ToLower(strings.TrimSpace(m))
	if idx := strings.Index(lower, ";"); idx >= 0 {
		lower = strings.TrimSpace(lower[:idx])
	}
	return lower
}

func isAllowedAttachment(m string) bool {
	if strings.HasPrefix(m, "image/") {
		return true
	}
	switch m {
	case "application/pdf", "text/plain":
		return true
	default:
		return false
	}
}
