package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// Documents use database sequences; chunks and entities use content hashes.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ContentType identifies how a document's raw bytes are encoded.
type ContentType string

const (
	ContentTypePDF  ContentType = "pdf"
	ContentTypeText ContentType = "text/plain"
	ContentTypeHTML ContentType = "text/html"
)

// SourceType records where a document came from.
type SourceType string

const (
	SourceUpload        SourceType = "upload"
	SourcePaste         SourceType = "paste"
	SourceWebSearch     SourceType = "web_search"
	SourceKnowledgeBase SourceType = "knowledge_base"
)

// DocumentStatus is a state in the document processing state machine.
type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusParsing   DocumentStatus = "parsing"
	StatusChunking  DocumentStatus = "chunking"
	StatusEmbedding DocumentStatus = "embedding"
	StatusIndexed   DocumentStatus = "indexed"
	StatusFailed    DocumentStatus = "failed"
)

// AllStatuses lists every document status in state machine order.
var AllStatuses = []DocumentStatus{
	StatusPending,
	StatusParsing,
	StatusChunking,
	StatusEmbedding,
	StatusIndexed,
	StatusFailed,
}

var transitions = map[DocumentStatus][]DocumentStatus{
	StatusPending:   {StatusParsing, StatusFailed},
	StatusParsing:   {StatusChunking, StatusFailed},
	StatusChunking:  {StatusEmbedding, StatusFailed},
	StatusEmbedding: {StatusIndexed, StatusFailed},
	StatusFailed:    {StatusPending},
}

// CanTransition reports whether the state machine allows moving from one status to another.
func CanTransition(from, to DocumentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InProgress reports whether the status is one of the intermediate processing states.
func (s DocumentStatus) InProgress() bool {
	return s == StatusParsing || s == StatusChunking || s == StatusEmbedding
}

// Terminal reports whether no further processing happens without an explicit retry.
func (s DocumentStatus) Terminal() bool {
	return s == StatusIndexed || s == StatusFailed
}

// FailureKind separates failures that a retry can fix from ones it cannot.
type FailureKind string

const (
	// FailureTransient marks provider or storage failures that may clear on their own.
	FailureTransient FailureKind = "transient"
	// FailurePermanent marks content failures that reproduce until the raw bytes change.
	FailurePermanent FailureKind = "permanent"
)

// Document is an ingested source awaiting or finished with processing.
// Raw content is stored separately and owned by the document.
type Document struct {
	Id          ID
	Title       string
	ContentType ContentType
	SourceType  SourceType
	Status      DocumentStatus
	Error       string      // Empty unless Status is failed
	FailureKind FailureKind // Empty unless Status is failed
	Size        int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// Chunk is a contiguous piece of a document's extracted text.
// Start and End are rune offsets into the extracted text, End exclusive.
type Chunk struct {
	Id         ID
	DocumentId ID
	Sequence   int
	Content    string
	Start      int
	End        int
	Vector     []float32 // Nil until embedded
	Indexed    bool      // True once the vector is durable and searchable
}

// ChunkIDFor returns the deterministic ID of a document's chunk at the given sequence.
func ChunkIDFor(documentID ID, sequence int) ID {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf, uint64(documentID))
	binary.BigEndian.PutUint64(buf[8:], uint64(sequence))
	return IDFromContent(string(buf))
}

// Embedded reports whether the chunk already carries a vector.
func (c *Chunk) Embedded() bool {
	return len(c.Vector) > 0
}

// ChunkHit is a single nearest-neighbour match from the chunk vector store.
type ChunkHit struct {
	Chunk    *Chunk
	Distance float32 // Cosine distance, lower is closer
}

// RetrievedChunk is a chunk ranked across several query variants.
// It only exists for the duration of one retrieval call.
type RetrievedChunk struct {
	Chunk        *Chunk
	Score        float32
	HitCount     int
	Variants     []int // Indices of the variants that retrieved the chunk, ascending
	BestDistance float32
}

// ExpansionEntry is a cached set of query variants.
type ExpansionEntry struct {
	Hash       string
	Query      string
	Expansions []string
	CreatedAt  time.Time
}

// EntityType is the knowledge-graph ontology tag of an entity.
type EntityType string

const (
	EntityActor   EntityType = "actor"
	EntityPolicy  EntityType = "policy"
	EntityOutcome EntityType = "outcome"
	EntityRisk    EntityType = "risk"
)

// ProvenanceRef ties a claim to the chunk and quote supporting it.
type ProvenanceRef struct {
	ChunkId    ID
	Quote      string
	Confidence int
}

// ExtractedEntity is one raw entity emitted by extraction for a chunk.
type ExtractedEntity struct {
	Type       EntityType
	Label      string
	Confidence int // 0-100
	Aliases    []string
	Provenance []ProvenanceRef
}

// Entity is a resolved, deduplicated entity.
type Entity struct {
	Id             ID
	Type           EntityType
	Label          string
	Key            string // Normalized grouping key
	Confidence     int
	BaseConfidence int
	Members        int // Number of raw entities merged into this one
	Aliases        []string
	Provenance     []ProvenanceRef
	UpdatedAt      time.Time
}

// Tuple returns a string representation of the entity as "(Type,Key)".
// This is used for generating deterministic IDs.
func (e *Entity) Tuple() string {
	return "(" + string(e.Type) + "," + e.Key + ")"
}

// DocumentResult is the outcome for one document within a processing batch.
type DocumentResult struct {
	DocumentId ID
	Status     DocumentStatus
	Chunks     int
	Error      string
}

// ProcessingReport summarizes one ProcessBatch call.
type ProcessingReport struct {
	RunId       string
	Processed   int
	Successful  int
	Failed      int
	Interrupted int
	Results     []DocumentResult
	Errors      []error // Systemic failures, e.g. an unreachable provider
}

// DocumentCounts holds document totals per status.
type DocumentCounts struct {
	Total      int
	Pending    int
	Parsing    int
	Chunking   int
	Embedding  int
	Processing int // Parsing + Chunking + Embedding
	Indexed    int
	Failed     int
}

// ChunkCounts holds chunk totals.
type ChunkCounts struct {
	Total   int
	Indexed int
}

// Stats is a snapshot of pipeline state.
type Stats struct {
	Documents DocumentCounts
	Chunks    ChunkCounts
}

// Checkpoint records the last completed run of a scheduled worker.
type Checkpoint struct {
	Worker      string
	RunId       string
	Processed   int
	Successful  int
	Failed      int
	Interrupted int
	UpdatedAt   time.Time
}
