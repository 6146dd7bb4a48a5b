package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/casetrack/casetrack/internal/audit"
	"github.com/casetrack/casetrack/internal/domain"
	"github.com/casetrack/casetrack/internal/events"
	"github.com/casetrack/casetrack/internal/rbac"
	"github.com/casetrack/casetrack/internal/repository"
	"github.com/casetrack/casetrack/internal/workflow"
	apperrors "github.com/casetrack/casetrack/pkg/util"
)

const (
	resourceCase   = "case"
	defaultPerPage = 10
	maxPerPage     = 100
)

// OperationMetrics counts case service outcomes.
type OperationMetrics interface {
	RecordCaseOperation(operation, result string)
}

// CasePolicy holds product rules that differ between deployments.
type CasePolicy struct {
	// AutoAssignCreator makes the creator the assignee of a new case
	// when the request names nobody.
	AutoAssignCreator bool
	DefaultPerPage    int
}

// CaseService coordinates case workflows. Every operation evaluates the
// actor's capabilities before touching storage.
type CaseService struct {
	cases      repository.CaseRepository
	users      repository.UserRepository
	tx         repository.TxRunner
	audit      audit.Recorder
	dispatcher events.Dispatcher
	metrics    OperationMetrics
	logger     *zap.Logger
	policy     CasePolicy
	validate   *validator.Validate
	now        func() time.Time
}

// CaseDependencies bundles collaborators for the case service.
type CaseDependencies struct {
	CaseRepo   repository.CaseRepository
	UserRepo   repository.UserRepository
	TxRunner   repository.TxRunner
	Audit      audit.Recorder
	Dispatcher events.Dispatcher
	Metrics    OperationMetrics
	Logger     *zap.Logger
	Policy     CasePolicy
}

// NewCaseService wires the service.
func NewCaseService(deps CaseDependencies) *CaseService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := deps.Policy
	if policy.DefaultPerPage <= 0 || policy.DefaultPerPage > maxPerPage {
		policy.DefaultPerPage = defaultPerPage
	}
	return &CaseService{
		cases:      deps.CaseRepo,
		users:      deps.UserRepo,
		tx:         deps.TxRunner,
		audit:      deps.Audit,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		policy:     policy,
		validate:   newValidator(),
		now:        time.Now,
	}
}

// CaseCreateInput describes case creation payload.
type CaseCreateInput struct {
	Title       string              `json:"title" validate:"required,max=200"`
	Description string              `json:"description"`
	Priority    domain.CasePriority `json:"priority" validate:"omitempty,case_priority"`
	DueDate     *time.Time          `json:"due_date"`
	AssignedTo  *string             `json:"assigned_to" validate:"omitempty,uuid"`
}

// CasePatch is a partial update. Nil pointers mean "not supplied"; the
// Clear flags distinguish an explicit JSON null.
type CasePatch struct {
	Title          *string
	Description    *string
	Status         *domain.CaseStatus
	Priority       *domain.CasePriority
	DueDate        *time.Time
	ClearDueDate   bool
	AssignedTo     *string
	ClearAssignee  bool
	StatusOverride bool
}

// Fields lists the case fields the patch touches.
func (p CasePatch) Fields() []domain.CaseField {
	var fields []domain.CaseField
	if p.Title != nil {
		fields = append(fields, domain.FieldTitle)
	}
	if p.Description != nil {
		fields = append(fields, domain.FieldDescription)
	}
	if p.Status != nil {
		fields = append(fields, domain.FieldStatus)
	}
	if p.Priority != nil {
		fields = append(fields, domain.FieldPriority)
	}
	if p.DueDate != nil || p.ClearDueDate {
		fields = append(fields, domain.FieldDueDate)
	}
	if p.AssignedTo != nil || p.ClearAssignee {
		fields = append(fields, domain.FieldAssignedTo)
	}
	return fields
}

// CaseListFilter describes listing filters. Status and priority values
// that are not recognised are ignored.
type CaseListFilter struct {
	Status     string
	Priority   string
	Search     string
	AssignedTo string
	CreatedBy  string
	Page       int
	PerPage    int
}

// AdminCaseFilter drives the unrestricted admin listing.
type AdminCaseFilter struct {
	Status  string
	Active  *bool
	Page    int
	PerPage int
}

// CaseList is one page of cases.
type CaseList struct {
	Items   []domain.Case
	Total   int
	Page    int
	PerPage int
}

// CaseAccess summarises what the actor may do with one case.
type CaseAccess struct {
	CanEdit          bool
	CanDelete        bool
	CanUpdateStatus  bool
	EditableFields   []domain.CaseField
	ValidTransitions []domain.CaseStatus
}

// CaseView is a case together with the caller's access summary.
type CaseView struct {
	Case   *domain.Case
	Access CaseAccess
}

// AccessFor computes the access summary for actor on c, taking the
// closed-case protection into account.
func AccessFor(actor *domain.User, c *domain.Case) CaseAccess {
	closedLocked := c.IsClosed() && !rbac.CanModifyClosed(actor)
	access := CaseAccess{
		CanEdit:          rbac.CanEdit(actor, c) && !closedLocked,
		CanDelete:        rbac.CanDelete(actor, c) && (!c.IsClosed() || rbac.CanDeleteClosed(actor)),
		CanUpdateStatus:  rbac.CanUpdateStatus(actor, c) && !closedLocked,
		EditableFields:   []domain.CaseField{},
		ValidTransitions: []domain.CaseStatus{},
	}
	if !closedLocked {
		access.EditableFields = rbac.EditableFields(actor, c)
	}
	if access.CanUpdateStatus {
		access.ValidTransitions = workflow.AllowedNext(c.Status)
	}
	return access
}

// CreateCase validates input and persists a new open case.
func (s *CaseService) CreateCase(ctx context.Context, actor *domain.User, input CaseCreateInput) (created *domain.Case, err error) {
	const action = "create_case"
	defer func() { s.observe("create", err) }()

	if !rbac.HasPermission(actor, rbac.CreateCase, nil) {
		s.record(ctx, actor, action, "", domain.AuditForbidden, "missing create_case")
		return nil, apperrors.NewForbidden("insufficient permissions to create cases")
	}

	input.Title = strings.TrimSpace(input.Title)
	if err := s.validate.Struct(input); err != nil {
		s.record(ctx, actor, action, "", domain.AuditValidationError, err.Error())
		return nil, validationFailure(err)
	}
	if input.DueDate != nil && !input.DueDate.After(s.now()) {
		s.record(ctx, actor, action, "", domain.AuditValidationError, "due date in the past")
		return nil, fieldError(domain.FieldDueDate, "must be in the future")
	}

	priority := input.Priority
	if priority == "" {
		priority = domain.CasePriorityMedium
	}

	assignee, corrected, err := s.resolveCreateAssignee(ctx, actor, input.AssignedTo)
	if err != nil {
		s.record(ctx, actor, action, "", domain.AuditValidationError, err.Error())
		return nil, err
	}

	c := &domain.Case{
		Title:       input.Title,
		Description: input.Description,
		Status:      workflow.InitialStatus,
		Priority:    priority,
		DueDate:     utcPtr(input.DueDate),
		CreatedBy:   actor.ID,
		AssignedTo:  assignee,
	}
	if err := s.cases.Create(ctx, c); err != nil {
		s.record(ctx, actor, action, "", domain.AuditError, err.Error())
		return nil, apperrors.MapError(err)
	}

	if corrected {
		s.record(ctx, actor, action, c.ID, domain.AuditCorrected,
			fmt.Sprintf("assignee %s replaced by creator: missing assign_cases", *input.AssignedTo))
	}
	s.record(ctx, actor, action, c.ID, domain.AuditSuccess, fmt.Sprintf("created case %q", c.Title))
	s.publish(ctx, events.EventCaseCreated, actor, c.ID, events.CaseCreatedPayload{
		Title:      c.Title,
		Priority:   c.Priority,
		AssignedTo: c.AssignedTo,
	})
	return c, nil
}

// resolveCreateAssignee applies the assignment rules for a new case. The
// bool result reports whether the requested assignee was replaced.
func (s *CaseService) resolveCreateAssignee(ctx context.Context, actor *domain.User, requested *string) (*string, bool, error) {
	if requested == nil || *requested == "" {
		if s.policy.AutoAssignCreator {
			id := actor.ID
			return &id, false, nil
		}
		return nil, false, nil
	}

	if *requested != actor.ID && !rbac.CanAssign(actor) {
		id := actor.ID
		return &id, true, nil
	}
	if *requested == actor.ID {
		id := actor.ID
		return &id, false, nil
	}
	if err := s.checkAssignee(ctx, s.users, *requested); err != nil {
		return nil, false, err
	}
	id := *requested
	return &id, false, nil
}

func (s *CaseService) checkAssignee(ctx context.Context, users repository.UserRepository, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fieldError(domain.FieldAssignedTo, "must be a valid id")
	}
	u, err := users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fieldError(domain.FieldAssignedTo, "assigned user not found or inactive")
		}
		return apperrors.MapError(err)
	}
	if !u.IsActive {
		return fieldError(domain.FieldAssignedTo, "assigned user not found or inactive")
	}
	return nil
}

// ListCases returns the page of active cases visible to actor.
func (s *CaseService) ListCases(ctx context.Context, actor *domain.User, filter CaseListFilter) (*CaseList, error) {
	page, perPage := s.pageBounds(filter.Page, filter.PerPage)
	result := &CaseList{Items: []domain.Case{}, Page: page, PerPage: perPage}

	scope := visibleScope(actor)
	if scope.Empty() {
		return result, nil
	}

	repoFilter := repository.CaseFilter{
		Scope:  scope,
		Search: filter.Search,
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if st := domain.CaseStatus(filter.Status); st.Valid() {
		repoFilter.Status = &st
	}
	if pr := domain.CasePriority(filter.Priority); pr.Valid() {
		repoFilter.Priority = &pr
	}
	if id := strings.TrimSpace(filter.AssignedTo); id != "" {
		if _, err := uuid.Parse(id); err != nil {
			return result, nil
		}
		repoFilter.AssignedTo = &id
	}
	if id := strings.TrimSpace(filter.CreatedBy); id != "" {
		if _, err := uuid.Parse(id); err != nil {
			return result, nil
		}
		repoFilter.CreatedBy = &id
	}

	items, total, err := s.cases.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	result.Items = items
	result.Total = total
	return result, nil
}

func visibleScope(actor *domain.User) repository.CaseScope {
	if rbac.HasPermission(actor, rbac.ViewAllCases, nil) {
		return repository.CaseScope{All: true}
	}
	var scope repository.CaseScope
	if rbac.HasPermission(actor, rbac.ViewOwnCases, nil) {
		scope.OwnerID = actor.ID
	}
	if rbac.HasPermission(actor, rbac.ViewAssignedCases, nil) {
		scope.AssigneeID = actor.ID
	}
	return scope
}

// ListAllCases lists cases across all owners for administrators. Only active
// cases are returned unless filter.Active says otherwise.
func (s *CaseService) ListAllCases(ctx context.Context, actor *domain.User, filter AdminCaseFilter) (*CaseList, error) {
	if !rbac.HasPermission(actor, rbac.ManageUsers, nil) {
		s.record(ctx, actor, "admin_list_cases", "", domain.AuditForbidden, "missing manage_users")
		return nil, apperrors.NewForbidden("admin access required")
	}

	active := true
	if filter.Active != nil {
		active = *filter.Active
	}
	page, perPage := s.pageBounds(filter.Page, filter.PerPage)
	repoFilter := repository.CaseFilter{
		Scope:           repository.CaseScope{All: true},
		Active:          &active,
		Limit:           perPage,
		Offset:          (page - 1) * perPage,
	}
	if st := domain.CaseStatus(filter.Status); st.Valid() {
		repoFilter.Status = &st
	}

	items, total, err := s.cases.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &CaseList{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

// GetCase loads one active case the actor may view.
func (s *CaseService) GetCase(ctx context.Context, actor *domain.User, id string) (view *CaseView, err error) {
	const action = "view_case"
	defer func() { s.observe("get", err) }()

	c, err := s.loadActive(ctx, s.cases.GetByID, id)
	if err != nil {
		s.record(ctx, actor, action, id, domain.AuditNotFound, "")
		return nil, err
	}
	if !rbac.CanView(actor, c) {
		s.record(ctx, actor, action, id, domain.AuditForbidden, "cannot view case")
		return nil, apperrors.NewForbidden("access denied")
	}
	return &CaseView{Case: c, Access: AccessFor(actor, c)}, nil
}

// UpdateCase applies patch under a row lock after checking capabilities,
// closed-case protection, field permissions and the status workflow.
func (s *CaseService) UpdateCase(ctx context.Context, actor *domain.User, id string, patch CasePatch) (updated *domain.Case, err error) {
	const action = "update_case"
	defer func() { s.observe("update", err) }()

	var (
		before         domain.Case
		overrideUsed   bool
		requested      = patch.Fields()
		requestedNames = fieldNames(requested)
	)

	err = s.tx.RunInTx(ctx, func(cases repository.CaseRepository, users repository.UserRepository) error {
		c, err := s.loadActive(ctx, cases.GetByIDForUpdate, id)
		if err != nil {
			s.record(ctx, actor, action, id, domain.AuditNotFound, "")
			return err
		}
		before = *c

		if !rbac.CanView(actor, c) {
			s.record(ctx, actor, action, id, domain.AuditForbidden, "cannot view case")
			return apperrors.NewForbidden("access denied")
		}

		editable := rbac.EditableFields(actor, c)
		if len(editable) == 0 {
			s.record(ctx, actor, action, id, domain.AuditForbidden, "no update permissions")
			return apperrors.NewForbidden("insufficient permissions to update this case")
		}
		if c.IsClosed() && !rbac.CanModifyClosed(actor) {
			s.record(ctx, actor, action, id, domain.AuditForbidden, "case is closed")
			return apperrors.NewForbiddenWithDetails("closed cases cannot be modified", map[string]any{
				"status": string(c.Status),
			})
		}

		if len(requested) == 0 {
			return apperrors.NewValidationError("no fields to update", nil)
		}
		if forbidden := subtract(requested, editable); len(forbidden) > 0 {
			s.record(ctx, actor, action, id, domain.AuditForbidden,
				fmt.Sprintf("attempted to update forbidden fields: %s", strings.Join(forbidden, ", ")))
			return apperrors.NewForbiddenWithDetails(
				fmt.Sprintf("you can only update these fields: %s", strings.Join(fieldNames(editable), ", ")),
				map[string]any{
					"forbidden_fields": forbidden,
					"allowed_fields":   fieldNames(editable),
				})
		}

		if err := s.validatePatch(patch); err != nil {
			s.record(ctx, actor, action, id, domain.AuditValidationError, err.Error())
			return err
		}

		if patch.Status != nil {
			used, err := s.applyStatus(ctx, actor, c, *patch.Status, patch.StatusOverride)
			if err != nil {
				return err
			}
			overrideUsed = used
		}

		if patch.ClearAssignee {
			c.AssignedTo = nil
		} else if patch.AssignedTo != nil && !c.IsAssignedTo(*patch.AssignedTo) {
			if err := s.checkAssignee(ctx, users, *patch.AssignedTo); err != nil {
				s.record(ctx, actor, action, id, domain.AuditValidationError, err.Error())
				return err
			}
			assignee := *patch.AssignedTo
			c.AssignedTo = &assignee
		}

		if patch.Title != nil {
			c.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			c.Description = *patch.Description
		}
		if patch.Priority != nil {
			c.Priority = *patch.Priority
		}
		if patch.ClearDueDate {
			c.DueDate = nil
		} else if patch.DueDate != nil {
			c.DueDate = utcPtr(patch.DueDate)
		}

		if err := cases.Update(ctx, c); err != nil {
			s.record(ctx, actor, action, id, domain.AuditError, err.Error())
			return apperrors.MapError(err)
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if overrideUsed {
		s.logger.Warn("status override",
			zap.String("case_id", id),
			zap.String("user_id", actor.ID),
			zap.String("from", string(before.Status)),
			zap.String("to", string(updated.Status)))
		s.record(ctx, actor, action, id, domain.AuditOverride,
			fmt.Sprintf("status override %s -> %s", before.Status, updated.Status))
	}
	s.record(ctx, actor, action, id, domain.AuditSuccess,
		fmt.Sprintf("updated fields: %s", strings.Join(requestedNames, ", ")))

	if before.Status != updated.Status {
		s.publish(ctx, events.EventCaseStatusChanged, actor, id, events.CaseStatusChangedPayload{
			OldStatus: before.Status,
			NewStatus: updated.Status,
			Override:  overrideUsed,
		})
	}
	if !sameAssignee(before.AssignedTo, updated.AssignedTo) {
		s.publish(ctx, events.EventCaseAssigned, actor, id, events.CaseAssignedPayload{
			PreviousAssignee: before.AssignedTo,
			Assignee:         updated.AssignedTo,
		})
	}
	return updated, nil
}

// applyStatus runs a requested status change through the workflow and
// reports whether the privileged override was needed.
func (s *CaseService) applyStatus(ctx context.Context, actor *domain.User, c *domain.Case, next domain.CaseStatus, override bool) (bool, error) {
	if override && !rbac.CanOverrideStatus(actor) {
		s.record(ctx, actor, "update_case", c.ID, domain.AuditForbidden, "status override not permitted")
		return false, apperrors.NewForbidden("status override requires administrator privileges")
	}
	if err := workflow.Validate(c.Status, next, override); err != nil {
		result := domain.AuditInvalidTransition
		if apperrors.CodeOf(err) == apperrors.CodeValidation {
			result = domain.AuditValidationError
		}
		s.record(ctx, actor, "update_case", c.ID, result,
			fmt.Sprintf("transition %s -> %s rejected", c.Status, next))
		return false, err
	}
	used := override && workflow.IsOverride(c.Status, next)
	c.Status = next
	return used, nil
}

func (s *CaseService) validatePatch(patch CasePatch) error {
	fields := map[string]string{}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		switch n := len([]rune(title)); {
		case n == 0:
			fields[string(domain.FieldTitle)] = "is required"
		case n > 200:
			fields[string(domain.FieldTitle)] = "must be at most 200 characters"
		}
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		fields[string(domain.FieldPriority)] = "must be one of low, medium, high"
	}
	if patch.Status != nil && !patch.Status.Valid() {
		fields[string(domain.FieldStatus)] = "must be one of open, in_progress, closed"
	}
	if patch.DueDate != nil && !patch.DueDate.After(s.now()) {
		fields[string(domain.FieldDueDate)] = "must be in the future"
	}
	if patch.AssignedTo != nil {
		if _, err := uuid.Parse(*patch.AssignedTo); err != nil {
			fields[string(domain.FieldAssignedTo)] = "must be a valid id"
		}
	}
	if patch.StatusOverride && patch.Status == nil {
		fields["status_override"] = "requires status"
	}
	if len(fields) > 0 {
		return apperrors.NewFieldValidationError(fields)
	}
	return nil
}

// DeleteCase soft-deletes a case. Deleting an already deleted case
// reports NotFound.
func (s *CaseService) DeleteCase(ctx context.Context, actor *domain.User, id string) (err error) {
	const action = "delete_case"
	defer func() { s.observe("delete", err) }()

	var title string
	err = s.tx.RunInTx(ctx, func(cases repository.CaseRepository, _ repository.UserRepository) error {
		c, err := s.loadActive(ctx, cases.GetByIDForUpdate, id)
		if err != nil {
			s.record(ctx, actor, action, id, domain.AuditNotFound, "case not found")
			return err
		}
		if !rbac.CanDelete(actor, c) {
			s.record(ctx, actor, action, id, domain.AuditForbidden, "insufficient delete permissions")
			return apperrors.NewForbidden("insufficient permissions to delete this case")
		}
		if c.IsClosed() && !rbac.CanDeleteClosed(actor) {
			s.record(ctx, actor, action, id, domain.AuditForbidden, "case is closed")
			return apperrors.NewForbiddenWithDetails("closed cases cannot be deleted", map[string]any{
				"status": string(c.Status),
			})
		}
		if err := cases.SoftDelete(ctx, id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				s.record(ctx, actor, action, id, domain.AuditNotFound, "case not found")
				return apperrors.NewNotFound("case", map[string]any{"id": id})
			}
			s.record(ctx, actor, action, id, domain.AuditError, err.Error())
			return apperrors.MapError(err)
		}
		title = c.Title
		return nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, actor, action, id, domain.AuditSuccess, fmt.Sprintf("deleted case %q", title))
	s.publish(ctx, events.EventCaseDeleted, actor, id, events.CaseDeletedPayload{Title: title})
	return nil
}

func (s *CaseService) loadActive(ctx context.Context, get func(context.Context, string) (*domain.Case, error), id string) (*domain.Case, error) {
	notFound := apperrors.NewNotFound("case", map[string]any{"id": id})
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound
	}
	c, err := get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, apperrors.MapError(err)
	}
	if !c.IsActive {
		return nil, notFound
	}
	return c, nil
}

func (s *CaseService) pageBounds(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = s.policy.DefaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func (s *CaseService) record(ctx context.Context, actor *domain.User, action, caseID string, result domain.AuditResult, details string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Entry{
		Actor:        actor,
		Action:       action,
		ResourceType: resourceCase,
		ResourceID:   caseID,
		Result:       result,
		Details:      details,
	})
}

func (s *CaseService) publish(ctx context.Context, typ events.EventType, actor *domain.User, caseID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		CaseID:    caseID,
		Actor:     events.ActorOf(actor),
		Timestamp: s.now().UTC(),
		Payload:   payload,
	})
}

func (s *CaseService) observe(operation string, err error) {
	if s.metrics == nil {
		return
	}
	result := string(domain.AuditSuccess)
	if err != nil {
		result = apperrors.ToDomainError(err).Code
	}
	s.metrics.RecordCaseOperation(operation, result)
}

func subtract(requested, allowed []domain.CaseField) []string {
	allowedSet := make(map[domain.CaseField]struct{}, len(allowed))
	for _, f := range allowed {
		allowedSet[f] = struct{}{}
	}
	var out []string
	for _, f := range requested {
		if _, ok := allowedSet[f]; !ok {
			out = append(out, string(f))
		}
	}
	sort.Strings(out)
	return out
}

func fieldNames(fields []domain.CaseField) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
