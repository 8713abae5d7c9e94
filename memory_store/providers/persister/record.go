package persister

import "time"

// Record is one stored question/answer pair with its embedding and metadata.
type Record struct {
	Id        string    `json:"id"`
	UserId    string    `json:"user_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Embedding []float32 `json:"embedding"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// View is the presentation projection of a Record. It never carries the
// embedding vector.
type View struct {
	Id        string    `json:"id"`
	UserId    string    `json:"user_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ViewOf strips the embedding from a record.
func ViewOf(rec Record) View {
	return View{
		Id:        rec.Id,
		UserId:    rec.UserId,
		Question:  rec.Question,
		Answer:    rec.Answer,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

// SchemaVersion tags every persisted collection.
const SchemaVersion = 1

// Collection is the full ordered list of one user's records, persisted as a
// single atomic unit.
type Collection struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Memories  []Record  `json:"memories"`
}
