package models

// ProcessorKind identifies the content processor a job is routed to.
// This provides explicit type-safety for job dispatch to the appropriate processor.
type ProcessorKind string

// ProcessorKind constants define all supported content processor kinds
const (
	KindPDF         ProcessorKind = "pdf"
	KindImageOCR    ProcessorKind = "image_ocr"
	KindTransformer ProcessorKind = "transformer"
	KindYoutube     ProcessorKind = "youtube"
	KindStory       ProcessorKind = "story"
	KindMetadata    ProcessorKind = "metadata"
)

// IsValid checks if the ProcessorKind is a known, valid kind
func (k ProcessorKind) IsValid() bool {
	switch k {
	case KindPDF, KindImageOCR, KindTransformer, KindYoutube, KindStory, KindMetadata:
		return true
	}
	return false
}

// String returns the string representation of the ProcessorKind
func (k ProcessorKind) String() string {
	return string(k)
}

// AllProcessorKinds returns a slice of all valid ProcessorKind values
func AllProcessorKinds() []ProcessorKind {
	return []ProcessorKind{
		KindPDF,
		KindImageOCR,
		KindTransformer,
		KindYoutube,
		KindStory,
		KindMetadata,
	}
}
