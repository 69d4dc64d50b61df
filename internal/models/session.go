package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ClassSession is one scheduled class instance. Capacity is never cached as
// a remaining-seat counter; occupancy is always counted from active bookings.
type ClassSession struct {
	bun.BaseModel `bun:"table:class_sessions,alias:cs"`

	ID          string    `json:"id" bun:"id,pk"`
	StudioID    string    `json:"studioId" bun:"studio_id"`
	ClassTypeID string    `json:"classTypeId" bun:"class_type_id"`
	TeacherID   string    `json:"teacherId" bun:"teacher_id"`
	LocationID  string    `json:"locationId" bun:"location_id"`
	StartTime   time.Time `json:"startTime" bun:"start_time"`
	EndTime     time.Time `json:"endTime" bun:"end_time"`
	Capacity    int       `json:"capacity" bun:"capacity"`

	ClassType *ClassType `json:"classType,omitempty" bun:"rel:belongs-to,join:class_type_id=id"`
	Teacher   *Teacher   `json:"teacher,omitempty" bun:"rel:belongs-to,join:teacher_id=id"`
	Location  *Location  `json:"location,omitempty" bun:"rel:belongs-to,join:location_id=id"`
}

// HasStarted is true once the start time is at or before now.
func (s *ClassSession) HasStarted(now time.Time) bool {
	return !s.StartTime.After(now)
}

func (s *ClassSession) ClassName() string {
	if s.ClassType == nil {
		return ""
	}
	return s.ClassType.Name
}

func (s *ClassSession) TeacherName() string {
	return s.Teacher.FullName()
}

func (s *ClassSession) LocationName() string {
	if s.Location == nil {
		return ""
	}
	return s.Location.Name
}
