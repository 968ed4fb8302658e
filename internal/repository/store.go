package repository

import "gorm.io/gorm"

// Store groups the repositories backing the task/submission lifecycle. All writes to the
// four tables go through it; the unique indexes on the tables arbitrate concurrent upserts.
type Store struct {
	Tasks       TaskRepository
	Submissions SubmissionRepository
	Results     ResultRepository
	Forms       FormEntryRepository
}

// NewStore wires every repository against the same database handle.
func NewStore(db *gorm.DB) Store {
	return Store{
		Tasks:       NewTaskRepository(db),
		Submissions: NewSubmissionRepository(db),
		Results:     NewResultRepository(db),
		Forms:       NewFormEntryRepository(db),
	}
}
