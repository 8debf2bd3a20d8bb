package models

import (
	"net/url"
	"strings"
	"time"

	"phishguard/internal/docstore"
)

const QuestionsCollection = "questions"

// Question priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ValidPriority reports whether p is one of the four priorities.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// QuestionStatus moves unanswered -> answered -> resolved and never back.
type QuestionStatus string

const (
	StatusUnanswered QuestionStatus = "unanswered"
	StatusAnswered   QuestionStatus = "answered"
	StatusResolved   QuestionStatus = "resolved"
)

// Person is the embedded author of a question or answer.
type Person struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

// NewPerson fills the display name and generated avatar the way the board
// shows anonymous authors.
func NewPerson(id, name, email, fallbackName, color string) Person {
	if name == "" {
		name = fallbackName
	}
	return Person{
		ID:     id,
		Name:   name,
		Email:  email,
		Avatar: "https://ui-avatars.com/api/?name=" + strings.ReplaceAll(url.QueryEscape(name), "+", "%20") + "&background=" + color + "&color=fff",
	}
}

func (p Person) toMap() map[string]any {
	return map[string]any{"id": p.ID, "name": p.Name, "email": p.Email, "avatar": p.Avatar}
}

func personFromMap(m map[string]any) Person {
	return Person{
		ID:     stringField(m, "id", ""),
		Name:   stringField(m, "name", ""),
		Email:  stringField(m, "email", ""),
		Avatar: stringField(m, "avatar", ""),
	}
}

// Answer is the reviewer's reply embedded in a question.
type Answer struct {
	Content    string    `json:"content"`
	AnsweredBy Person    `json:"answeredBy"`
	Timestamp  time.Time `json:"timestamp"`
}

// ToMap renders the answer for an update.
func (a Answer) ToMap() map[string]any {
	return map[string]any{
		"content":    a.Content,
		"answeredBy": a.AnsweredBy.toMap(),
		"timestamp":  docstore.ServerTimestamp,
	}
}

// Question is a learner's question on the Q&A board.
type Question struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Student   Person         `json:"student"`
	Category  string         `json:"category"`
	Timestamp time.Time      `json:"timestamp"`
	Priority  string         `json:"priority"`
	Status    QuestionStatus `json:"status"`
	Likes     int            `json:"likes"`
	Views     int            `json:"views"`
	Tags      []string       `json:"tags"`
	Answer    *Answer        `json:"answer,omitempty"`
}

// ToDocument renders a new question.
func (q Question) ToDocument() map[string]any {
	tags := make([]any, len(q.Tags))
	for i, t := range q.Tags {
		tags[i] = t
	}
	return map[string]any{
		"content":   q.Content,
		"student":   q.Student.toMap(),
		"category":  q.Category,
		"timestamp": docstore.ServerTimestamp,
		"priority":  q.Priority,
		"status":    string(q.Status),
		"likes":     q.Likes,
		"views":     q.Views,
		"tags":      tags,
	}
}

// QuestionFromDocument normalizes a remote question document.
func QuestionFromDocument(doc docstore.Document) Question {
	d := doc.Data
	q := Question{
		ID:        doc.ID,
		Content:   stringField(d, "content", ""),
		Student:   personFromMap(mapField(d, "student")),
		Category:  stringField(d, "category", "general"),
		Timestamp: timeField(d, "timestamp", doc.CreatedAt),
		Priority:  stringField(d, "priority", PriorityMedium),
		Status:    QuestionStatus(stringField(d, "status", string(StatusUnanswered))),
		Likes:     intField(d, "likes"),
		Views:     intField(d, "views"),
		Tags:      stringsField(d, "tags"),
	}
	if !ValidPriority(q.Priority) {
		q.Priority = PriorityMedium
	}
	switch q.Status {
	case StatusUnanswered, StatusAnswered, StatusResolved:
	default:
		q.Status = StatusUnanswered
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	if a := mapField(d, "answer"); a != nil {
		q.Answer = &Answer{
			Content:    stringField(a, "content", ""),
			AnsweredBy: personFromMap(mapField(a, "answeredBy")),
			Timestamp:  timeField(a, "timestamp", q.Timestamp),
		}
	}
	return q
}
