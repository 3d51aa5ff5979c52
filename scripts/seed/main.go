package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/pointsheet/pointsheet-api/internal/models"
	"github.com/pointsheet/pointsheet-api/internal/repository"
	"github.com/pointsheet/pointsheet-api/internal/service"
	"github.com/pointsheet/pointsheet-api/pkg/config"
	"github.com/pointsheet/pointsheet-api/pkg/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS schools (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    logo_url   TEXT NOT NULL DEFAULT '',
    theme      JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS staff (
    uid            TEXT PRIMARY KEY,
    school_id      TEXT NOT NULL REFERENCES schools (id),
    email          TEXT NOT NULL UNIQUE,
    password_hash  TEXT NOT NULL,
    full_name      TEXT NOT NULL,
    roles          JSONB NOT NULL DEFAULT '[]'::jsonb,
    claims_version INTEGER NOT NULL DEFAULT 1,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_staff_school ON staff (school_id);

CREATE TABLE IF NOT EXISTS students (
    id             TEXT PRIMARY KEY,
    school_id      TEXT NOT NULL REFERENCES schools (id),
    full_name      TEXT NOT NULL,
    grade_level    TEXT NOT NULL DEFAULT '',
    teacher_uid    TEXT NOT NULL DEFAULT '',
    active_plan_id TEXT,
    guardians      JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_students_school ON students (school_id);

CREATE TABLE IF NOT EXISTS plans (
    id             TEXT PRIMARY KEY,
    school_id      TEXT NOT NULL REFERENCES schools (id),
    student_id     TEXT NOT NULL REFERENCES students (id),
    plan_type      TEXT NOT NULL,
    schedule       JSONB NOT NULL DEFAULT '[]'::jsonb,
    goals          JSONB NOT NULL DEFAULT '[]'::jsonb,
    incentives     JSONB NOT NULL DEFAULT '[]'::jsonb,
    quick_buttons  JSONB NOT NULL DEFAULT '[]'::jsonb,
    accommodations JSONB NOT NULL DEFAULT '[]'::jsonb,
    archived       BOOLEAN NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plans_student ON plans (school_id, student_id);

CREATE TABLE IF NOT EXISTS days (
    plan_id    TEXT NOT NULL REFERENCES plans (id),
    day_key    TEXT NOT NULL,
    matrix     JSONB NOT NULL DEFAULT '{}'::jsonb,
    totals     JSONB NOT NULL DEFAULT '{}'::jsonb,
    comments   JSONB NOT NULL DEFAULT '{}'::jsonb,
    incidents  JSONB NOT NULL DEFAULT '[]'::jsonb,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (plan_id, day_key)
);

CREATE TABLE IF NOT EXISTS audit_entries (
    id          TEXT PRIMARY KEY,
    school_id   TEXT NOT NULL,
    acted_by    TEXT NOT NULL,
    as_user_id  TEXT NOT NULL,
    as_role     TEXT NOT NULL,
    action      TEXT NOT NULL,
    target_path TEXT NOT NULL,
    details     JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_school_time ON audit_entries (school_id, created_at DESC);

CREATE TABLE IF NOT EXISTS export_jobs (
    id            TEXT PRIMARY KEY,
    school_id     TEXT NOT NULL,
    plan_id       TEXT NOT NULL,
    type          TEXT NOT NULL,
    params        JSONB NOT NULL DEFAULT '{}'::jsonb,
    status        TEXT NOT NULL,
    progress      INTEGER NOT NULL DEFAULT 0,
    result_path   TEXT,
    error_message TEXT,
    created_by    TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_export_jobs_school ON export_jobs (school_id, created_at DESC);
`

const dropStatements = `
DROP TABLE IF EXISTS export_jobs;
DROP TABLE IF EXISTS audit_entries;
DROP TABLE IF EXISTS days;
DROP TABLE IF EXISTS plans;
DROP TABLE IF EXISTS students;
DROP TABLE IF EXISTS staff;
DROP TABLE IF EXISTS schools;
`

const adminEmail = "admin@pointsheet.test"

func main() {
	var (
		drop       bool
		password   string
		schoolName string
		backDays   int
	)

	flag.BoolVar(&drop, "drop", false, "Drop and recreate all tables before seeding")
	flag.StringVar(&password, "password", "pointsheet-dev", "Password assigned to every seeded account")
	flag.StringVar(&schoolName, "school", "Maple Grove Elementary", "Name of the demo school")
	flag.IntVar(&backDays, "days", 10, "Number of past school days to score")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	if drop {
		if _, err := db.ExecContext(ctx, dropStatements); err != nil {
			log.Fatalf("failed to drop tables: %v", err)
		}
		fmt.Println("Dropped existing tables")
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}
	fmt.Println("Schema is up to date")

	staffRepo := repository.NewStaffRepository(db)
	if _, err := staffRepo.FindByEmail(ctx, adminEmail); err == nil {
		log.Fatalf("demo tenant already seeded (%s exists); rerun with -drop to reset", adminEmail)
	} else if !errors.Is(err, sql.ErrNoRows) {
		log.Fatalf("failed to check for existing seed: %v", err)
	}

	loc, err := time.LoadLocation(cfg.SchoolDay.Timezone)
	if err != nil {
		log.Fatalf("failed to load school timezone %q: %v", cfg.SchoolDay.Timezone, err)
	}

	s := seeder{db: db, staff: staffRepo, loc: loc}
	if err := s.run(ctx, schoolName, password, backDays); err != nil {
		log.Fatalf("seeding failed: %v", err)
	}
}

type seeder struct {
	db    *sqlx.DB
	staff *repository.StaffRepository
	loc   *time.Location
}

func (s *seeder) run(ctx context.Context, schoolName, password string, backDays int) error {
	now := time.Now().UTC()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	schools := repository.NewSchoolRepository(s.db)
	students := repository.NewStudentRepository(s.db)
	plans := repository.NewPlanRepository(s.db)
	days := repository.NewDayRepository(s.db)

	school := &models.School{
		ID:   uuid.NewString(),
		Name: schoolName,
		Theme: models.Theme{
			Mode: "light",
			Vars: map[string]string{"accent": "#2f6f4f"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := schools.Create(ctx, school); err != nil {
		return fmt.Errorf("create school: %w", err)
	}
	fmt.Printf("School: %s (%s)\n", school.Name, school.ID)

	accounts := []struct {
		email string
		name  string
		roles models.RoleList
	}{
		{adminEmail, "Dana Whitfield", models.RoleList{models.RoleAdmin}},
		{"teacher@pointsheet.test", "Marcus Bell", models.RoleList{models.RoleTeacher}},
		{"specials@pointsheet.test", "Priya Raman", models.RoleList{models.RoleSpecials}},
		{"achievement@pointsheet.test", "Jo Kaminski", models.RoleList{models.RoleAchievement}},
		{"parent@pointsheet.test", "Terry Alvarez", models.RoleList{models.RoleParent}},
	}

	uids := make(map[string]string, len(accounts))
	for _, acct := range accounts {
		member := &models.Staff{
			UID:           uuid.NewString(),
			SchoolID:      school.ID,
			Email:         acct.email,
			PasswordHash:  string(hash),
			FullName:      acct.name,
			Roles:         acct.roles,
			ClaimsVersion: 1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.staff.Upsert(ctx, member); err != nil {
			return fmt.Errorf("upsert staff %s: %w", acct.email, err)
		}
		uids[acct.email] = member.UID
		fmt.Printf("Staff:  %-30s %v\n", acct.email, acct.roles)
	}

	teacherUID := uids["teacher@pointsheet.test"]

	roster := []struct {
		name     string
		grade    string
		planType models.PlanType
	}{
		{"Avery Johnson", "3", models.PlanTypePercent},
		{"Sam Okafor", "4", models.PlanTypePercentAMPM},
	}

	for i, entry := range roster {
		student := &models.Student{
			ID:         uuid.NewString(),
			SchoolID:   school.ID,
			FullName:   entry.name,
			GradeLevel: entry.grade,
			TeacherUID: teacherUID,
			Guardians: models.GuardianList{
				{Name: "Jordan " + entry.name, Relation: "guardian", Email: fmt.Sprintf("guardian%d@pointsheet.test", i+1)},
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := students.Create(ctx, student); err != nil {
			return fmt.Errorf("create student %s: %w", entry.name, err)
		}

		plan := demoPlan(school.ID, student.ID, entry.planType, now)
		if err := plans.Create(ctx, plan); err != nil {
			return fmt.Errorf("create plan for %s: %w", entry.name, err)
		}
		if err := students.SetActivePlan(ctx, school.ID, student.ID, plan.ID); err != nil {
			return fmt.Errorf("activate plan for %s: %w", entry.name, err)
		}

		if err := s.scoreHistory(ctx, days, plan, backDays, i); err != nil {
			return fmt.Errorf("score history for %s: %w", entry.name, err)
		}
		fmt.Printf("Student: %-20s plan %s (%s)\n", entry.name, plan.ID, plan.PlanType)
	}

	fmt.Printf("\nSeed complete. Sign in with any account above, password %q.\n", password)
	return nil
}

// demoPlan builds a realistic point sheet definition. The AM/PM variant
// marks the first three periods as morning.
func demoPlan(schoolID, studentID string, planType models.PlanType, now time.Time) *models.Plan {
	schedule := models.PeriodList{
		{ID: "arrival", Label: "Arrival", Morning: true},
		{ID: "reading", Label: "Reading", Morning: true},
		{ID: "math", Label: "Math", Morning: true},
		{ID: "lunch", Label: "Lunch & Recess"},
		{ID: "science", Label: "Science"},
		{ID: "pack-up", Label: "Pack Up"},
	}
	return &models.Plan{
		ID:        uuid.NewString(),
		SchoolID:  schoolID,
		StudentID: studentID,
		PlanType:  planType,
		Schedule:  schedule,
		Goals: models.GoalList{
			{ID: "on-task", Label: "Stayed on task", Kind: models.GoalKindStepper},
			{ID: "kind-words", Label: "Used kind words", Kind: models.GoalKindStepper},
			{ID: "materials", Label: "Had materials ready", Kind: models.GoalKindCheckbox},
		},
		Incentives: models.IncentiveList{
			{Label: "Sticker", MinPct: 60},
			{Label: "Computer time", MinPct: 80},
			{Label: "Lunch with teacher", MinPct: 95},
		},
		QuickButtons: models.ButtonList{
			{ID: "elopement", Label: "Left assigned area", Color: "#d9534f"},
			{ID: "outburst", Label: "Verbal outburst", Color: "#f0ad4e"},
		},
		Accommodations: models.StringList{"Movement break after Math", "Visual schedule on desk"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// scoreHistory backfills the most recent weekdays with a full matrix,
// recomputed totals and a sprinkling of comments and incidents.
func (s *seeder) scoreHistory(ctx context.Context, days *repository.DayRepository, plan *models.Plan, backDays, salt int) error {
	agg := service.NewDayAggregator()
	keys := recentWeekdays(time.Now().In(s.loc), backDays)

	for di, key := range keys {
		matrix := models.Matrix{}
		for pi, period := range plan.Schedule {
			for gi, goal := range plan.Goals {
				value := demoCell(goal.Kind, di+pi+gi+salt)
				if err := days.MergeCell(ctx, plan.ID, key, period.ID, goal.ID, value); err != nil {
					return fmt.Errorf("day %s cell %s/%s: %w", key, period.ID, goal.ID, err)
				}
				row, ok := matrix[period.ID]
				if !ok {
					row = map[string]models.CellValue{}
					matrix[period.ID] = row
				}
				row[goal.ID] = value
			}
		}
		if err := days.SetTotals(ctx, plan.ID, key, agg.Aggregate(plan, matrix)); err != nil {
			return fmt.Errorf("day %s totals: %w", key, err)
		}

		// Rough day gets a note and a logged incident.
		if (di+salt)%4 == 3 {
			if err := days.SetTeacherComment(ctx, plan.ID, key, "Tough afternoon; recovered well after a movement break."); err != nil {
				return fmt.Errorf("day %s comment: %w", key, err)
			}
			button := plan.QuickButtons[salt%len(plan.QuickButtons)]
			incident := models.Incident{
				ID:     uuid.NewString(),
				Label:  button.Label,
				Color:  button.Color,
				Note:   "During transition back from lunch.",
				Source: models.RoleTeacher,
				At:     mustParseDay(key, s.loc).Add(13 * time.Hour),
			}
			if err := days.ReplaceIncidents(ctx, plan.ID, key, models.IncidentList{incident}); err != nil {
				return fmt.Errorf("day %s incidents: %w", key, err)
			}
		}
	}
	return nil
}

// demoCell produces deterministic but varied scores so seeded charts have
// texture instead of flat lines.
func demoCell(kind models.GoalKind, n int) models.CellValue {
	if kind == models.GoalKindCheckbox {
		return models.CheckboxValue(n%3 != 0)
	}
	return models.StepperValue(int64(2 - n%3))
}

// recentWeekdays returns day keys for the last n weekdays ending today,
// oldest first.
func recentWeekdays(from time.Time, n int) []string {
	keys := make([]string, 0, n)
	day := from
	for len(keys) < n {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			keys = append(keys, day.Format(models.DayKeyLayout))
		}
		day = day.AddDate(0, 0, -1)
	}
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}
	return keys
}

func mustParseDay(key string, loc *time.Location) time.Time {
	t, err := time.ParseInLocation(models.DayKeyLayout, key, loc)
	if err != nil {
		return time.Now().In(loc)
	}
	return t
}
