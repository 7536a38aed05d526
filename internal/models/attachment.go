package models

import (
	"strings"
)

// AttachmentKind classifies an uploaded file by its declared media type.
// Classification happens exactly once, when the attachment enters the system;
// everything downstream switches on the kind instead of re-inspecting the
// media type string.
type AttachmentKind string

const (
	AttachmentImage        AttachmentKind = "image"
	AttachmentDocument     AttachmentKind = "document"
	AttachmentAudio        AttachmentKind = "audio"
	AttachmentUnrecognized AttachmentKind = "unrecognized"
)

// IsValid checks if the kind is a known value
func (k AttachmentKind) IsValid() bool {
	switch k {
	case AttachmentImage, AttachmentDocument, AttachmentAudio, AttachmentUnrecognized:
		return true
	default:
		return false
	}
}

// String returns the string representation of the kind
func (k AttachmentKind) String() string {
	return string(k)
}

// documentMediaTypes are the non-prefix media types accepted into the
// document bucket.
var documentMediaTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/rtf": true,
}

// ClassifyAttachment maps a declared media type to its bucket. Parameters
// after a semicolon (charset etc.) are ignored. Anything that matches no
// bucket is Unrecognized and will be dropped from transmission.
func ClassifyAttachment(mediaType string) AttachmentKind {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	switch {
	case strings.HasPrefix(mt, "image/"):
		return AttachmentImage
	case strings.HasPrefix(mt, "audio/"):
		return AttachmentAudio
	case strings.HasPrefix(mt, "text/"):
		return AttachmentDocument
	case documentMediaTypes[mt]:
		return AttachmentDocument
	default:
		return AttachmentUnrecognized
	}
}

// Attachment represents a binary file attached to a chat message. Data holds
// the raw bytes; base64 encoding happens at the wire layer.
type Attachment struct {
	Filename  string         `json:"filename"`
	MediaType string         `json:"media_type"`
	Kind      AttachmentKind `json:"kind"`
	Data      []byte         `json:"-"`
}

// NewAttachment builds an attachment, classifying it from the declared media type
func NewAttachment(filename, mediaType string, data []byte) Attachment {
	return Attachment{
		Filename:  filename,
		MediaType: mediaType,
		Kind:      ClassifyAttachment(mediaType),
		Data:      data,
	}
}

// AttachmentDTO represents the API view of an attachment (metadata only)
type AttachmentDTO struct {
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
	Kind      string `json:"kind"`
	Size      int    `json:"size"`
}

// ToDTO converts an attachment to its API representation
func (a *Attachment) ToDTO() AttachmentDTO {
	return AttachmentDTO{
		Filename:  a.Filename,
		MediaType: a.MediaType,
		Kind:      string(a.Kind),
		Size:      len(a.Data),
	}
}
