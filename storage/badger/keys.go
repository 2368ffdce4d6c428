package badger

import (
	"encoding/binary"

	"github.com/poiesic/lexis/core"
)

// Key prefixes for different data types
const (
	documentPrefix       = "doc:"
	documentRawPrefix    = "docraw:"
	documentStatusPrefix = "docst:"
	documentIDSeq        = "docseq"
	chunkPrefix          = "chunk:"
	expansionPrefix      = "exp:"
	entityPrefix         = "ent:"
	entityTuplePrefix    = "entkey:"
	checkpointPrefix     = "chkpt:"
)

// appendID writes id in BigEndian order so lexicographic sort matches numeric order.
func appendID(buf []byte, id core.ID) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return appendID([]byte(documentPrefix), id)
}

// makeDocumentRawKey generates a key for a document's raw content.
func makeDocumentRawKey(id core.ID) []byte {
	return appendID([]byte(documentRawPrefix), id)
}

// makeStatusPrefix generates the prefix of the status index for one status.
// Format: prefix:status:
func makeStatusPrefix(status core.DocumentStatus) []byte {
	return []byte(documentStatusPrefix + string(status) + ":")
}

// makeStatusKey generates a composite key for the status index.
// Format: prefix:status:id
func makeStatusKey(status core.DocumentStatus, id core.ID) []byte {
	return appendID(makeStatusPrefix(status), id)
}

// idFromStatusKey extracts the document ID from a status index key.
func idFromStatusKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// makeChunkPrefix generates the prefix shared by all chunks of a document.
// Format: prefix:documentID
func makeChunkPrefix(documentID core.ID) []byte {
	return appendID([]byte(chunkPrefix), documentID)
}

// makeChunkKey generates a composite key for a chunk.
// Format: prefix:documentID:sequence
func makeChunkKey(documentID core.ID, sequence int) []byte {
	return binary.BigEndian.AppendUint64(makeChunkPrefix(documentID), uint64(sequence))
}

// makeExpansionKey generates a key for an expansion cache entry.
func makeExpansionKey(hash string) []byte {
	return []byte(expansionPrefix + hash)
}

// makeEntityKey generates a key for an entity by ID.
func makeEntityKey(id core.ID) []byte {
	return appendID([]byte(entityPrefix), id)
}

// makeEntityTuplePrefix generates the tuple index prefix for one entity type.
func makeEntityTuplePrefix(entityType core.EntityType) []byte {
	return []byte(entityTuplePrefix + string(entityType) + ":")
}

// makeEntityTupleKey generates a composite key for entity lookup by (type, key).
// Format: prefix:type:key
func makeEntityTupleKey(entityType core.EntityType, key string) []byte {
	return append(makeEntityTuplePrefix(entityType), key...)
}

// makeCheckpointKey generates a key for worker checkpoints.
func makeCheckpointKey(worker string) []byte {
	return []byte(checkpointPrefix + worker)
}
