package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procesio/procesio/model"
)

// PgStores is a PostgreSQL-backed implementation of all store
// interfaces using pgx/v5. Optimistic locking is enforced with
// conditional UPDATEs on the version column.
type PgStores struct {
	pool *pgxpool.Pool
}

// NewPgStores creates a PostgreSQL store set over an existing pool.
func NewPgStores(pool *pgxpool.Pool) *PgStores {
	return &PgStores{pool: pool}
}

// Stores returns the bundle view of this store set.
func (s *PgStores) Stores() Stores {
	return Stores{
		Definitions: s,
		Instances:   s,
		Tasks:       s,
		Approvals:   s,
		Audit:       s,
	}
}

// Ping verifies database connectivity. Satisfies the readiness checker.
func (s *PgStores) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- definitions ---

func (s *PgStores) CreateDefinition(ctx context.Context, def model.ProcessDefinition) error {
	stepsJSON, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO process_definitions (
			id, family_id, tenant_id, name, description, category,
			version, status, steps, created_by,
			created_at, updated_at, record_version
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, 1
		)`,
		def.ID, def.FamilyID, def.TenantID, def.Name, def.Description, def.Category,
		def.Version, def.Status, stepsJSON, def.CreatedBy,
		def.CreatedAt, def.UpdatedAt,
	)
	if err != nil {
		// Unique index on (tenant_id, family_id, version) backs the
		// one-record-per-version rule under concurrent revision.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.NewConflictError(fmt.Sprintf(
				"version %d already exists in family %s", def.Version, def.FamilyID,
			))
		}
		return fmt.Errorf("insert process definition: %w", err)
	}
	return nil
}

func (s *PgStores) GetDefinition(ctx context.Context, tenantID, id string) (model.ProcessDefinition, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, family_id, tenant_id, name, description, category,
		       version, status, steps, created_by,
		       created_at, updated_at, record_version
		FROM process_definitions
		WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	def, err := scanDefinition(row)
	if err == pgx.ErrNoRows {
		return model.ProcessDefinition{}, model.NewNotFoundError(
			fmt.Sprintf("definition %q not found", id),
		)
	}
	if err != nil {
		return model.ProcessDefinition{}, fmt.Errorf("query process definition: %w", err)
	}
	return def, nil
}

func (s *PgStores) UpdateDefinition(ctx context.Context, def model.ProcessDefinition) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process_definitions SET
			name = $1,
			description = $2,
			category = $3,
			status = $4,
			updated_at = $5,
			record_version = $6
		WHERE id = $7 AND tenant_id = $8 AND record_version = $9`,
		def.Name, def.Description, def.Category, def.Status,
		time.Now().UTC(), def.RecordVersion+1,
		def.ID, def.TenantID, def.RecordVersion,
	)
	if err != nil {
		return fmt.Errorf("update process definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("definition %q version conflict (expected %d)", def.ID, def.RecordVersion),
		)
	}
	return nil
}

func (s *PgStores) ListDefinitions(ctx context.Context, tenantID string, filters DefinitionFilters) ([]model.ProcessDefinition, error) {
	query := `SELECT id, family_id, tenant_id, name, description, category,
	                 version, status, steps, created_by,
	                 created_at, updated_at, record_version
	          FROM process_definitions
	          WHERE tenant_id = $1`
	args := []any{tenantID}
	argIdx := 2

	if filters.FamilyID != "" {
		query += fmt.Sprintf(" AND family_id = $%d", argIdx)
		args = append(args, filters.FamilyID)
		argIdx++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filters.Status)
		argIdx++
	}
	if filters.Category != "" {
		query += fmt.Sprintf(" AND lower(category) = lower($%d)", argIdx)
		args = append(args, filters.Category)
	}

	query += " ORDER BY family_id ASC, version DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query process definitions: %w", err)
	}
	defer rows.Close()

	var defs []model.ProcessDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan process definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (s *PgStores) ResolveActive(ctx context.Context, tenantID, familyID string) (model.ProcessDefinition, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, family_id, tenant_id, name, description, category,
		       version, status, steps, created_by,
		       created_at, updated_at, record_version
		FROM process_definitions
		WHERE tenant_id = $1 AND family_id = $2 AND status = 'active'
		ORDER BY version DESC
		LIMIT 1`,
		tenantID, familyID,
	)
	def, err := scanDefinition(row)
	if err == pgx.ErrNoRows {
		return model.ProcessDefinition{}, model.NewNotFoundError(
			fmt.Sprintf("no active definition in family %q", familyID),
		)
	}
	if err != nil {
		return model.ProcessDefinition{}, fmt.Errorf("resolve active definition: %w", err)
	}
	return def, nil
}

func (s *PgStores) LatestVersion(ctx context.Context, tenantID, familyID string) (int, error) {
	var highest int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM process_definitions
		WHERE tenant_id = $1 AND family_id = $2`,
		tenantID, familyID,
	).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("query latest definition version: %w", err)
	}
	return highest, nil
}

// --- instances ---

func (s *PgStores) CreateInstance(ctx context.Context, inst model.ProcessInstance) error {
	inputJSON, err := json.Marshal(inst.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO process_instances (
			id, definition_id, definition_version, tenant_id,
			initiated_by, initiator_name, status, current_step, input,
			started_at, completed_at, due_date, reason, updated_at, version
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, 1
		)`,
		inst.ID, inst.DefinitionID, inst.DefinitionVersion, inst.TenantID,
		inst.InitiatedBy, inst.InitiatorName, inst.Status, inst.CurrentStep, inputJSON,
		inst.StartedAt, inst.CompletedAt, inst.DueDate, inst.Reason, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert process instance: %w", err)
	}
	return nil
}

func (s *PgStores) GetInstance(ctx context.Context, tenantID, id string) (model.ProcessInstance, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, definition_id, definition_version, tenant_id,
		       initiated_by, initiator_name, status, current_step, input,
		       started_at, completed_at, due_date, reason, updated_at, version
		FROM process_instances
		WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	inst, err := scanInstance(row)
	if err == pgx.ErrNoRows {
		return model.ProcessInstance{}, model.NewNotFoundError(
			fmt.Sprintf("instance %q not found", id),
		)
	}
	if err != nil {
		return model.ProcessInstance{}, fmt.Errorf("query process instance: %w", err)
	}
	return inst, nil
}

func (s *PgStores) UpdateInstance(ctx context.Context, inst model.ProcessInstance) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process_instances SET
			status = $1,
			current_step = $2,
			completed_at = $3,
			due_date = $4,
			reason = $5,
			updated_at = $6,
			version = $7
		WHERE id = $8 AND tenant_id = $9 AND version = $10`,
		inst.Status, inst.CurrentStep, inst.CompletedAt, inst.DueDate, inst.Reason,
		time.Now().UTC(), inst.Version+1,
		inst.ID, inst.TenantID, inst.Version,
	)
	if err != nil {
		return fmt.Errorf("update process instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("instance %q version conflict (expected %d)", inst.ID, inst.Version),
		)
	}
	return nil
}

func (s *PgStores) ListInstances(ctx context.Context, tenantID string, filters InstanceFilters) ([]model.ProcessInstance, error) {
	query := `SELECT id, definition_id, definition_version, tenant_id,
	                 initiated_by, initiator_name, status, current_step, input,
	                 started_at, completed_at, due_date, reason, updated_at, version
	          FROM process_instances
	          WHERE tenant_id = $1`
	args := []any{tenantID}
	argIdx := 2

	if filters.DefinitionID != "" {
		query += fmt.Sprintf(" AND definition_id = $%d", argIdx)
		args = append(args, filters.DefinitionID)
		argIdx++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filters.Status)
		argIdx++
	}
	if filters.InitiatedBy != "" {
		query += fmt.Sprintf(" AND initiated_by = $%d", argIdx)
		args = append(args, filters.InitiatedBy)
		argIdx++
	}

	query += " ORDER BY started_at DESC, id ASC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	return s.queryInstances(ctx, query, args...)
}

func (s *PgStores) FindOverdueInstances(ctx context.Context, cutoff time.Time) ([]model.ProcessInstance, error) {
	query := `SELECT id, definition_id, definition_version, tenant_id,
	                 initiated_by, initiator_name, status, current_step, input,
	                 started_at, completed_at, due_date, reason, updated_at, version
	          FROM process_instances
	          WHERE status = 'running' AND due_date IS NOT NULL AND due_date < $1
	          ORDER BY due_date ASC`
	return s.queryInstances(ctx, query, cutoff)
}

func (s *PgStores) queryInstances(ctx context.Context, query string, args ...any) ([]model.ProcessInstance, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query process instances: %w", err)
	}
	defer rows.Close()

	var instances []model.ProcessInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan process instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// --- tasks ---

func (s *PgStores) CreateTask(ctx context.Context, task model.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (
			id, instance_id, tenant_id, step_number, name,
			assignee, assignee_name, priority, status, due_date,
			outcome, comments, created_at, updated_at,
			completed_at, completed_by, version
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, 1
		)`,
		task.ID, task.InstanceID, task.TenantID, task.StepNumber, task.Name,
		task.Assignee, task.AssigneeName, task.Priority, task.Status, task.DueDate,
		task.Outcome, task.Comments, task.CreatedAt, task.UpdatedAt,
		task.CompletedAt, task.CompletedBy,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PgStores) GetTask(ctx context.Context, tenantID, id string) (model.Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, instance_id, tenant_id, step_number, name,
		       assignee, assignee_name, priority, status, due_date,
		       outcome, comments, created_at, updated_at,
		       completed_at, completed_by, version
		FROM tasks
		WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	task, err := scanTask(row)
	if err == pgx.ErrNoRows {
		return model.Task{}, model.NewNotFoundError(fmt.Sprintf("task %q not found", id))
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

func (s *PgStores) UpdateTask(ctx context.Context, task model.Task) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET
			assignee = $1,
			assignee_name = $2,
			priority = $3,
			status = $4,
			due_date = $5,
			outcome = $6,
			comments = $7,
			updated_at = $8,
			completed_at = $9,
			completed_by = $10,
			version = $11
		WHERE id = $12 AND tenant_id = $13 AND version = $14`,
		task.Assignee, task.AssigneeName, task.Priority, task.Status, task.DueDate,
		task.Outcome, task.Comments, time.Now().UTC(),
		task.CompletedAt, task.CompletedBy, task.Version+1,
		task.ID, task.TenantID, task.Version,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("task %q version conflict (expected %d)", task.ID, task.Version),
		)
	}
	return nil
}

func (s *PgStores) ListTasksByInstance(ctx context.Context, tenantID, instanceID string) ([]model.Task, error) {
	query := `SELECT id, instance_id, tenant_id, step_number, name,
	                 assignee, assignee_name, priority, status, due_date,
	                 outcome, comments, created_at, updated_at,
	                 completed_at, completed_by, version
	          FROM tasks
	          WHERE tenant_id = $1 AND instance_id = $2
	          ORDER BY created_at ASC, id ASC`
	return s.queryTasks(ctx, query, tenantID, instanceID)
}

func (s *PgStores) ListPendingTasks(ctx context.Context, tenantID, assignee string) ([]model.Task, error) {
	query := `SELECT id, instance_id, tenant_id, step_number, name,
	                 assignee, assignee_name, priority, status, due_date,
	                 outcome, comments, created_at, updated_at,
	                 completed_at, completed_by, version
	          FROM tasks
	          WHERE tenant_id = $1 AND assignee = $2 AND status IN ('pending', 'in_progress')
	          ORDER BY due_date ASC NULLS LAST, created_at ASC, id ASC`
	return s.queryTasks(ctx, query, tenantID, assignee)
}

func (s *PgStores) queryTasks(ctx context.Context, query string, args ...any) ([]model.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// --- approvals ---

func (s *PgStores) CreateApproval(ctx context.Context, appr model.Approval) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO approvals (
			id, instance_id, tenant_id, step_number, requester,
			approver, approver_name, chain_level, chain_length, status,
			due_date, comments, decided_at, created_at, updated_at, version
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, 1
		)`,
		appr.ID, appr.InstanceID, appr.TenantID, appr.StepNumber, appr.Requester,
		appr.Approver, appr.ApproverName, appr.ChainLevel, appr.ChainLength, appr.Status,
		appr.DueDate, appr.Comments, appr.DecidedAt, appr.CreatedAt, appr.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

func (s *PgStores) GetApproval(ctx context.Context, tenantID, id string) (model.Approval, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, instance_id, tenant_id, step_number, requester,
		       approver, approver_name, chain_level, chain_length, status,
		       due_date, comments, decided_at, created_at, updated_at, version
		FROM approvals
		WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	appr, err := scanApproval(row)
	if err == pgx.ErrNoRows {
		return model.Approval{}, model.NewNotFoundError(fmt.Sprintf("approval %q not found", id))
	}
	if err != nil {
		return model.Approval{}, fmt.Errorf("query approval: %w", err)
	}
	return appr, nil
}

func (s *PgStores) UpdateApproval(ctx context.Context, appr model.Approval) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE approvals SET
			approver = $1,
			approver_name = $2,
			status = $3,
			due_date = $4,
			comments = $5,
			decided_at = $6,
			updated_at = $7,
			version = $8
		WHERE id = $9 AND tenant_id = $10 AND version = $11`,
		appr.Approver, appr.ApproverName, appr.Status, appr.DueDate,
		appr.Comments, appr.DecidedAt, time.Now().UTC(), appr.Version+1,
		appr.ID, appr.TenantID, appr.Version,
	)
	if err != nil {
		return fmt.Errorf("update approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("approval %q version conflict (expected %d)", appr.ID, appr.Version),
		)
	}
	return nil
}

func (s *PgStores) ListApprovalsByInstance(ctx context.Context, tenantID, instanceID string) ([]model.Approval, error) {
	query := `SELECT id, instance_id, tenant_id, step_number, requester,
	                 approver, approver_name, chain_level, chain_length, status,
	                 due_date, comments, decided_at, created_at, updated_at, version
	          FROM approvals
	          WHERE tenant_id = $1 AND instance_id = $2
	          ORDER BY step_number ASC, chain_level ASC`
	return s.queryApprovals(ctx, query, tenantID, instanceID)
}

func (s *PgStores) ListPendingApprovals(ctx context.Context, tenantID, approver string) ([]model.Approval, error) {
	query := `SELECT id, instance_id, tenant_id, step_number, requester,
	                 approver, approver_name, chain_level, chain_length, status,
	                 due_date, comments, decided_at, created_at, updated_at, version
	          FROM approvals
	          WHERE tenant_id = $1 AND approver = $2 AND status IN ('pending', 'escalated')
	          ORDER BY due_date ASC NULLS LAST, created_at ASC`
	return s.queryApprovals(ctx, query, tenantID, approver)
}

func (s *PgStores) FindOverdueApprovals(ctx context.Context, cutoff time.Time) ([]model.Approval, error) {
	query := `SELECT id, instance_id, tenant_id, step_number, requester,
	                 approver, approver_name, chain_level, chain_length, status,
	                 due_date, comments, decided_at, created_at, updated_at, version
	          FROM approvals
	          WHERE status IN ('pending', 'escalated') AND due_date IS NOT NULL AND due_date < $1
	          ORDER BY due_date ASC`
	return s.queryApprovals(ctx, query, cutoff)
}

func (s *PgStores) queryApprovals(ctx context.Context, query string, args ...any) ([]model.Approval, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query approvals: %w", err)
	}
	defer rows.Close()

	var approvals []model.Approval
	for rows.Next() {
		appr, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		approvals = append(approvals, appr)
	}
	return approvals, rows.Err()
}

// --- audit ---

func (s *PgStores) AppendEvent(ctx context.Context, event model.AuditEvent) error {
	detailJSON, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("marshal event detail: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_events (
			id, subject_type, subject_id, instance_id, tenant_id,
			event_type, actor, detail, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.SubjectType, event.SubjectID, event.InstanceID, event.TenantID,
		event.Type, event.Actor, detailJSON, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PgStores) ListEventsBySubject(ctx context.Context, tenantID, subjectID string, offset, limit int) ([]model.AuditEvent, error) {
	query := `SELECT id, subject_type, subject_id, instance_id, tenant_id,
	                 event_type, actor, detail, occurred_at
	          FROM audit_events
	          WHERE tenant_id = $1 AND (subject_id = $2 OR instance_id = $2)
	          ORDER BY occurred_at ASC, id ASC`
	args := []any{tenantID, subjectID}
	argIdx := 3

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
		argIdx++
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var detailJSON []byte
		if err := rows.Scan(
			&ev.ID, &ev.SubjectType, &ev.SubjectID, &ev.InstanceID, &ev.TenantID,
			&ev.Type, &ev.Actor, &detailJSON, &ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if detailJSON != nil {
			_ = json.Unmarshal(detailJSON, &ev.Detail)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- row scanning ---

func scanDefinition(row pgx.Row) (model.ProcessDefinition, error) {
	var def model.ProcessDefinition
	var stepsJSON []byte
	err := row.Scan(
		&def.ID, &def.FamilyID, &def.TenantID, &def.Name, &def.Description, &def.Category,
		&def.Version, &def.Status, &stepsJSON, &def.CreatedBy,
		&def.CreatedAt, &def.UpdatedAt, &def.RecordVersion,
	)
	if err != nil {
		return model.ProcessDefinition{}, err
	}
	if stepsJSON != nil {
		if err := json.Unmarshal(stepsJSON, &def.Steps); err != nil {
			return model.ProcessDefinition{}, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	return def, nil
}

func scanInstance(row pgx.Row) (model.ProcessInstance, error) {
	var inst model.ProcessInstance
	var inputJSON []byte
	err := row.Scan(
		&inst.ID, &inst.DefinitionID, &inst.DefinitionVersion, &inst.TenantID,
		&inst.InitiatedBy, &inst.InitiatorName, &inst.Status, &inst.CurrentStep, &inputJSON,
		&inst.StartedAt, &inst.CompletedAt, &inst.DueDate, &inst.Reason, &inst.UpdatedAt, &inst.Version,
	)
	if err != nil {
		return model.ProcessInstance{}, err
	}
	if inputJSON != nil {
		_ = json.Unmarshal(inputJSON, &inst.Input)
	}
	return inst, nil
}

func scanTask(row pgx.Row) (model.Task, error) {
	var task model.Task
	err := row.Scan(
		&task.ID, &task.InstanceID, &task.TenantID, &task.StepNumber, &task.Name,
		&task.Assignee, &task.AssigneeName, &task.Priority, &task.Status, &task.DueDate,
		&task.Outcome, &task.Comments, &task.CreatedAt, &task.UpdatedAt,
		&task.CompletedAt, &task.CompletedBy, &task.Version,
	)
	if err != nil {
		return model.Task{}, err
	}
	return task, nil
}

func scanApproval(row pgx.Row) (model.Approval, error) {
	var appr model.Approval
	err := row.Scan(
		&appr.ID, &appr.InstanceID, &appr.TenantID, &appr.StepNumber, &appr.Requester,
		&appr.Approver, &appr.ApproverName, &appr.ChainLevel, &appr.ChainLength, &appr.Status,
		&appr.DueDate, &appr.Comments, &appr.DecidedAt, &appr.CreatedAt, &appr.UpdatedAt, &appr.Version,
	)
	if err != nil {
		return model.Approval{}, err
	}
	return appr, nil
}
