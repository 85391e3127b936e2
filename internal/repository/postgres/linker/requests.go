package linker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"stitch/internal/domain"
	linkerModels "stitch/internal/domain/models/linker"
	linkerRepo "stitch/internal/domain/repositories/linker"
	"stitch/internal/repository/postgres"
)

// PostgresRequestRepository implements the linker query executors and writer
// over a single prefixed requests table.
type PostgresRequestRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewRequestRepository creates a new PostgresRequestRepository
func NewRequestRepository(config *postgres.RepositoryConfig) *PostgresRequestRepository {
	return &PostgresRequestRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Interface conformance
var (
	_ linkerRepo.ParentQueryExecutor  = (*PostgresRequestRepository)(nil)
	_ linkerRepo.SubtaskQueryExecutor = (*PostgresRequestRepository)(nil)
	_ linkerRepo.RequestReader        = (*PostgresRequestRepository)(nil)
	_ linkerRepo.RequestWriter        = (*PostgresRequestRepository)(nil)
)

const recordColumns = `
	request_id, domain, timestamp, conversation_id, branch_id,
	current_message_hash, parent_message_hash, system_hash,
	parent_request_id, is_subtask, parent_task_request_id,
	task_tool_invocation, message_count, response_text, is_summarization`

// EnsureSchema creates the requests table and its indexes if they do not
// exist. The GIN index backs the task-invocation containment fast path.
func (r *PostgresRequestRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				request_id             TEXT PRIMARY KEY,
				domain                 TEXT NOT NULL,
				timestamp              TIMESTAMPTZ NOT NULL,
				conversation_id        TEXT NOT NULL,
				branch_id              TEXT NOT NULL,
				current_message_hash   TEXT NOT NULL,
				parent_message_hash    TEXT,
				system_hash            TEXT NOT NULL,
				parent_request_id      TEXT,
				is_subtask             BOOLEAN NOT NULL DEFAULT FALSE,
				parent_task_request_id TEXT,
				task_tool_invocation   JSONB,
				message_count          INTEGER NOT NULL,
				response_text          TEXT,
				is_summarization       BOOLEAN NOT NULL DEFAULT FALSE
			)`, r.tables.Requests),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_domain_hash_idx ON %s (domain, current_message_hash)`,
			r.tables.Requests, r.tables.Requests),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_parent_idx ON %s (parent_request_id)`,
			r.tables.Requests, r.tables.Requests),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_conversation_idx ON %s (conversation_id, timestamp)`,
			r.tables.Requests, r.tables.Requests),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_task_launch_idx ON %s (parent_task_request_id) WHERE is_subtask`,
			r.tables.Requests, r.tables.Requests),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_invocation_idx ON %s USING GIN (task_tool_invocation jsonb_path_ops)`,
			r.tables.Requests, r.tables.Requests),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_summary_idx ON %s (domain, timestamp DESC) WHERE is_summarization`,
			r.tables.Requests, r.tables.Requests),
	}

	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// FindParents returns candidate parents whose current_message_hash equals
// parentHash, each joined with its conversation's accumulated message count.
func (r *PostgresRequestRepository) FindParents(ctx context.Context, domainID, parentHash string, systemHash *string, excludeRequestID string) ([]linkerModels.ParentCandidate, error) {
	query := fmt.Sprintf(`
		SELECT %s, conv.total_messages
		FROM %s r
		JOIN (
			SELECT conversation_id, SUM(message_count) AS total_messages
			FROM %s
			WHERE domain = $1
			GROUP BY conversation_id
		) conv ON conv.conversation_id = r.conversation_id
		WHERE r.domain = $1
		  AND r.current_message_hash = $2
		  AND ($3::text IS NULL OR r.system_hash = $3)
		  AND r.request_id <> $4
		ORDER BY conv.total_messages ASC, r.timestamp ASC, r.request_id ASC
	`, prefixColumns("r"), r.tables.Requests, r.tables.Requests)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, domainID, parentHash, systemHash, excludeRequestID)
	if err != nil {
		return nil, fmt.Errorf("find parents: %w", err)
	}
	defer rows.Close()

	var candidates []linkerModels.ParentCandidate
	for rows.Next() {
		var candidate linkerModels.ParentCandidate
		var invocation []byte
		if err := scanRecord(rows, &candidate.Record, &invocation, &candidate.ConversationMessages); err != nil {
			return nil, fmt.Errorf("scan parent candidate: %w", err)
		}
		if err := attachInvocation(&candidate.Record, invocation); err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find parents: %w", err)
	}

	return candidates, nil
}

// FindTaskInvocations returns task-launch candidates recorded at or after
// since. A non-nil prompt narrows the scan with a JSONB containment match
// served by the GIN index.
func (r *PostgresRequestRepository) FindTaskInvocations(ctx context.Context, domainID string, prompt *string, since time.Time) ([]linkerModels.TaskInvocation, error) {
	var promptFilter []byte
	if prompt != nil {
		var err error
		promptFilter, err = json.Marshal(map[string]string{"prompt": *prompt})
		if err != nil {
			return nil, fmt.Errorf("marshal prompt filter: %w", err)
		}
	}

	query := fmt.Sprintf(`
		SELECT request_id, conversation_id, branch_id, timestamp, task_tool_invocation
		FROM %s
		WHERE domain = $1
		  AND timestamp >= $2
		  AND task_tool_invocation IS NOT NULL
		  AND ($3::jsonb IS NULL OR task_tool_invocation @> $3)
		ORDER BY timestamp DESC, request_id ASC
	`, r.tables.Requests)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, domainID, since, promptFilter)
	if err != nil {
		return nil, fmt.Errorf("find task invocations: %w", err)
	}
	defer rows.Close()

	var invocations []linkerModels.TaskInvocation
	for rows.Next() {
		var inv linkerModels.TaskInvocation
		var raw []byte
		if err := rows.Scan(&inv.RequestID, &inv.ConversationID, &inv.BranchID, &inv.Timestamp, &raw); err != nil {
			return nil, fmt.Errorf("scan task invocation: %w", err)
		}
		// The JSONB column holds tool_use_id / tool_name / prompt; the row
		// columns supply the launch context.
		var payload linkerModels.TaskInvocation
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode task invocation: %w", err)
		}
		inv.ToolUseID = payload.ToolUseID
		inv.ToolName = payload.ToolName
		inv.Prompt = payload.Prompt
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find task invocations: %w", err)
	}

	return invocations, nil
}

// GetByID retrieves a stored request record
func (r *PostgresRequestRepository) GetByID(ctx context.Context, requestID string) (*linkerModels.StoredRequestRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE request_id = $1`, recordColumns, r.tables.Requests)

	executor := postgres.GetExecutor(ctx, r.pool)
	row := executor.QueryRow(ctx, query, requestID)

	var record linkerModels.StoredRequestRecord
	var invocation []byte
	if err := scanRecord(row, &record, &invocation); err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("request %s: %w", requestID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	if err := attachInvocation(&record, invocation); err != nil {
		return nil, err
	}

	return &record, nil
}

// ListChildren retrieves all records whose parent_request_id equals requestID
func (r *PostgresRequestRepository) ListChildren(ctx context.Context, requestID string) ([]linkerModels.StoredRequestRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE parent_request_id = $1
		ORDER BY timestamp ASC, request_id ASC
	`, recordColumns, r.tables.Requests)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var children []linkerModels.StoredRequestRecord
	for rows.Next() {
		var record linkerModels.StoredRequestRecord
		var invocation []byte
		if err := scanRecord(rows, &record, &invocation); err != nil {
			return nil, fmt.Errorf("scan child record: %w", err)
		}
		if err := attachInvocation(&record, invocation); err != nil {
			return nil, err
		}
		children = append(children, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}

	return children, nil
}

// ListConversation retrieves every record sharing a conversation id
func (r *PostgresRequestRepository) ListConversation(ctx context.Context, conversationID string) ([]linkerModels.StoredRequestRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE conversation_id = $1
		ORDER BY timestamp ASC, request_id ASC
	`, recordColumns, r.tables.Requests)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	defer rows.Close()

	var records []linkerModels.StoredRequestRecord
	for rows.Next() {
		var record linkerModels.StoredRequestRecord
		var invocation []byte
		if err := scanRecord(rows, &record, &invocation); err != nil {
			return nil, fmt.Errorf("scan conversation record: %w", err)
		}
		if err := attachInvocation(&record, invocation); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}

	return records, nil
}

// CountSubtasks counts requests already linked as sub-tasks of a launch
func (r *PostgresRequestRepository) CountSubtasks(ctx context.Context, parentTaskRequestID string) (int, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE parent_task_request_id = $1 AND is_subtask
	`, r.tables.Requests)

	var count int
	executor := postgres.GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, parentTaskRequestID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count subtasks: %w", err)
	}
	return count, nil
}

// FindSummaryResponses retrieves summarization responses for the domain,
// newest first.
func (r *PostgresRequestRepository) FindSummaryResponses(ctx context.Context, domainID string) ([]linkerModels.SummaryCandidate, error) {
	query := fmt.Sprintf(`
		SELECT request_id, conversation_id, response_text, timestamp
		FROM %s
		WHERE domain = $1 AND is_summarization AND response_text IS NOT NULL
		ORDER BY timestamp DESC, request_id ASC
	`, r.tables.Requests)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, domainID)
	if err != nil {
		return nil, fmt.Errorf("find summary responses: %w", err)
	}
	defer rows.Close()

	var candidates []linkerModels.SummaryCandidate
	for rows.Next() {
		var candidate linkerModels.SummaryCandidate
		if err := rows.Scan(&candidate.RequestID, &candidate.ConversationID, &candidate.Text, &candidate.Timestamp); err != nil {
			return nil, fmt.Errorf("scan summary candidate: %w", err)
		}
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find summary responses: %w", err)
	}

	return candidates, nil
}

// Insert writes a new stored request record
func (r *PostgresRequestRepository) Insert(ctx context.Context, record *linkerModels.StoredRequestRecord) error {
	var invocation []byte
	if record.TaskToolInvocation != nil {
		var err error
		invocation, err = json.Marshal(record.TaskToolInvocation)
		if err != nil {
			return fmt.Errorf("marshal task invocation: %w", err)
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, r.tables.Requests, recordColumns)

	executor := postgres.GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		record.RequestID,
		record.Domain,
		record.Timestamp,
		record.ConversationID,
		record.BranchID,
		record.CurrentMessageHash,
		record.ParentMessageHash,
		record.SystemHash,
		record.ParentRequestID,
		record.IsSubtask,
		record.ParentTaskRequestID,
		invocation,
		record.MessageCount,
		record.ResponseText,
		record.IsSummarization,
	)
	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return fmt.Errorf("request %s: %w", record.RequestID, domain.ErrConflict)
		}
		return fmt.Errorf("insert request: %w", err)
	}

	return nil
}

// AttachTaskInvocation backfills the task_tool_invocation column
func (r *PostgresRequestRepository) AttachTaskInvocation(ctx context.Context, requestID string, invocation *linkerModels.TaskInvocation) error {
	payload, err := json.Marshal(invocation)
	if err != nil {
		return fmt.Errorf("marshal task invocation: %w", err)
	}

	query := fmt.Sprintf(`UPDATE %s SET task_tool_invocation = $2 WHERE request_id = $1`, r.tables.Requests)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, requestID, payload)
	if err != nil {
		return fmt.Errorf("attach task invocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %s: %w", requestID, domain.ErrNotFound)
	}

	return nil
}

// scanRecord scans the recordColumns list plus any trailing extras into a
// record. The JSONB invocation lands in raw bytes for the caller to decode.
func scanRecord(row pgx.Row, record *linkerModels.StoredRequestRecord, invocation *[]byte, extras ...any) error {
	dest := []any{
		&record.RequestID,
		&record.Domain,
		&record.Timestamp,
		&record.ConversationID,
		&record.BranchID,
		&record.CurrentMessageHash,
		&record.ParentMessageHash,
		&record.SystemHash,
		&record.ParentRequestID,
		&record.IsSubtask,
		&record.ParentTaskRequestID,
		invocation,
		&record.MessageCount,
		&record.ResponseText,
		&record.IsSummarization,
	}
	dest = append(dest, extras...)
	return row.Scan(dest...)
}

func attachInvocation(record *linkerModels.StoredRequestRecord, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	var invocation linkerModels.TaskInvocation
	if err := json.Unmarshal(raw, &invocation); err != nil {
		return fmt.Errorf("decode task invocation: %w", err)
	}
	record.TaskToolInvocation = &invocation
	return nil
}

// prefixColumns qualifies recordColumns with a table alias for joins.
func prefixColumns(alias string) string {
	return fmt.Sprintf(`
	%[1]s.request_id, %[1]s.domain, %[1]s.timestamp, %[1]s.conversation_id, %[1]s.branch_id,
	%[1]s.current_message_hash, %[1]s.parent_message_hash, %[1]s.system_hash,
	%[1]s.parent_request_id, %[1]s.is_subtask, %[1]s.parent_task_request_id,
	%[1]s.task_tool_invocation, %[1]s.message_count, %[1]s.response_text, %[1]s.is_summarization`, alias)
}
