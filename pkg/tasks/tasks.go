// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// IndexTask represents the data structure for a document indexing job.
type IndexTask struct {
	DocID      string `json:"doc_id"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
	UserID     uint   `json:"user_id"`
}
