package badger

import (
	"fmt"

	"github.com/poiesic/lore/core"
)

const (
	vectorPrefix     = "vec"
	vectorDocPrefix  = "vecdoc"
	taskPrefix       = "task"
	checkpointPrefix = "chkpt"
)

// collectionPart length-prefixes a collection id so one collection's prefix
// can never match another's keys ("a" vs "a:b").
func collectionPart(collectionID string) string {
	return fmt.Sprintf("%d:%s", len(collectionID), collectionID)
}

// makeVectorPrefix returns the prefix of every vector in a collection.
// Format: vec:len:collection:
func makeVectorPrefix(collectionID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", vectorPrefix, collectionPart(collectionID)))
}

// makeVectorKey generates a key for a vector record.
// Format: vec:len:collection:id
func makeVectorKey(collectionID string, id core.ID) []byte {
	return append(makeVectorPrefix(collectionID), string(id)...)
}

// makeVectorDocPrefix returns the index prefix for one document's vectors.
// Format: vecdoc:len:collection:document:
func makeVectorDocPrefix(collectionID string, documentID core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:", vectorDocPrefix, collectionPart(collectionID), documentID))
}

// makeVectorDocKey generates the document index key for a vector.
// Format: vecdoc:len:collection:document:id
func makeVectorDocKey(collectionID string, documentID, id core.ID) []byte {
	return append(makeVectorDocPrefix(collectionID, documentID), string(id)...)
}

// makeTaskKey generates a key for a task.
func makeTaskKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%s", taskPrefix, id))
}

// makeCheckpointKey generates a key for a named processing checkpoint.
func makeCheckpointKey(name string) []byte {
	return []byte(fmt.Sprintf("%s:%s", checkpointPrefix, name))
}
