package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/enrollment"
)

const milestoneColumns = "id, principal_id, course_id, enrollment_id, kind, metadata, created_at"

type milestoneRow struct {
	ID           string         `db:"id"`
	PrincipalID  string         `db:"principal_id"`
	CourseID     string         `db:"course_id"`
	EnrollmentID string         `db:"enrollment_id"`
	Kind         string         `db:"kind"`
	Metadata     types.JSONText `db:"metadata"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (row milestoneRow) milestone() enrollment.Milestone {
	return enrollment.Milestone{
		ID:           row.ID,
		PrincipalID:  row.PrincipalID,
		CourseID:     row.CourseID,
		EnrollmentID: row.EnrollmentID,
		Kind:         enrollment.MilestoneKind(row.Kind),
		Metadata:     json.RawMessage(row.Metadata),
		CreatedAt:    row.CreatedAt.UTC(),
	}
}

type milestoneRepository struct {
	baseRepository
}

var _ enrollment.MilestoneRepository = (*milestoneRepository)(nil) // interface compliance check

func NewMilestoneRepository(exec core.DBExecutor) *milestoneRepository {
	return &milestoneRepository{baseRepository{exec: exec}}
}

func (repo milestoneRepository) CreateMilestone(ctx context.Context, m enrollment.Milestone, exec ...core.DBExecutor) (enrollment.Milestone, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	meta := types.JSONText(m.Metadata)
	if len(meta) == 0 {
		meta = types.JSONText("{}")
	}
	row := milestoneRow{
		ID:           m.ID,
		PrincipalID:  m.PrincipalID,
		CourseID:     m.CourseID,
		EnrollmentID: m.EnrollmentID,
		Kind:         string(m.Kind),
		Metadata:     meta,
		CreatedAt:    m.CreatedAt.UTC(),
	}
	q := `INSERT INTO milestones (` + milestoneColumns + `)
		VALUES (:id, :principal_id, :course_id, :enrollment_id, :kind, :metadata, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return enrollment.Milestone{}, errors.Wrap(err, "inserting milestone")
	}
	return row.milestone(), nil
}

func (repo milestoneRepository) QueryMilestones(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) ([]enrollment.Milestone, error) {
	e := repo.getExec(exec)
	var rows []milestoneRow
	q := "SELECT " + milestoneColumns + " FROM milestones WHERE enrollment_id = ? ORDER BY " +
		core.DBOrdering{Field: "created_at", Ascending: true}.String()
	if err := sqlx.SelectContext(ctx, e, &rows, e.Rebind(q), enrollmentID); err != nil {
		return nil, errors.Wrap(err, "selecting milestones")
	}
	milestones := make([]enrollment.Milestone, 0, len(rows))
	for _, row := range rows {
		milestones = append(milestones, row.milestone())
	}
	return milestones, nil
}
