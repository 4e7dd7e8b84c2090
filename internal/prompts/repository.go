// Package prompts implements the prompt-source collaborator over
// Postgres. Prompt content storage is owned externally; this repository
// only selects random safe prompt ids and formats prompt payloads per
// game type.
package prompts

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/partygames/gamesnight/internal/apperrors"
	"github.com/partygames/gamesnight/internal/models"
	"github.com/partygames/gamesnight/internal/room"
)

// Querier defines what the repository needs from the database layer.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements room.PromptSource over Postgres.
type Repository struct {
	db Querier
}

var _ room.PromptSource = (*Repository)(nil)

// NewRepository creates a prompt repository over the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// NewRepositoryWithQuerier creates a prompt repository over any querier.
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{db: q}
}

type promptTables struct {
	table      string
	themeTable string
}

func tablesFor(gameType models.GameType) (promptTables, error) {
	switch gameType {
	case models.GameTypeWouldYouRather:
		return promptTables{"prompts_would_you_rather", "would_you_rather_themes"}, nil
	case models.GameTypeTruthOrDare:
		return promptTables{"prompts_truth_or_dare", "truth_or_dare_themes"}, nil
	case models.GameTypeSixtySeconds:
		return promptTables{"prompts_sixty_seconds", "sixty_seconds_themes"}, nil
	case models.GameTypeHotSeat:
		return promptTables{"prompts_hot_seat", "hot_seat_themes"}, nil
	case models.GameTypeDrawGuess:
		return promptTables{"prompts_draw_guess", "draw_guess_themes"}, nil
	default:
		return promptTables{}, apperrors.UnknownGameType(string(gameType))
	}
}

// FetchPromptIDs selects up to limit random safe prompt ids for the game
// type, optionally restricted to the given themes.
func (r *Repository) FetchPromptIDs(ctx context.Context, gameType models.GameType, themeIDs []int, limit int) ([]string, error) {
	tables, err := tablesFor(gameType)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = room.PromptQueueCap
	}

	var (
		query string
		args  []any
	)
	if len(themeIDs) > 0 {
		query = fmt.Sprintf(
			`SELECT DISTINCT p.id FROM %s p
			 JOIN %s pt ON pt.prompt_id = p.id
			 WHERE p.is_safe AND pt.theme_id = ANY($1)
			 ORDER BY random() LIMIT $2`,
			tables.table, tables.themeTable)
		args = []any{themeIDs, limit}
	} else {
		query = fmt.Sprintf(
			`SELECT p.id FROM %s p WHERE p.is_safe ORDER BY random() LIMIT $1`,
			tables.table)
		args = []any{limit}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select prompt ids for %s: %w", gameType, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan prompt id: %w", err)
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prompt ids: %w", err)
	}
	return ids, nil
}

// FetchPromptPayload loads one prompt and formats it for its game type.
func (r *Repository) FetchPromptPayload(ctx context.Context, gameType models.GameType, id string) (room.PromptPayload, error) {
	promptID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return room.PromptPayload{}, apperrors.NotFound("prompt %s not found", id)
	}

	payload := room.PromptPayload{ID: id}
	switch gameType {
	case models.GameTypeWouldYouRather:
		err = r.db.QueryRow(ctx,
			`SELECT option_a, option_b FROM prompts_would_you_rather WHERE id = $1`,
			promptID).Scan(&payload.OptionA, &payload.OptionB)
	case models.GameTypeTruthOrDare:
		err = r.db.QueryRow(ctx,
			`SELECT prompt_type, text FROM prompts_truth_or_dare WHERE id = $1`,
			promptID).Scan(&payload.Type, &payload.Text)
	case models.GameTypeSixtySeconds:
		err = r.db.QueryRow(ctx,
			`SELECT category FROM prompts_sixty_seconds WHERE id = $1`,
			promptID).Scan(&payload.Category)
	case models.GameTypeHotSeat:
		err = r.db.QueryRow(ctx,
			`SELECT question FROM prompts_hot_seat WHERE id = $1`,
			promptID).Scan(&payload.Question)
	case models.GameTypeDrawGuess:
		err = r.db.QueryRow(ctx,
			`SELECT word, difficulty FROM prompts_draw_guess WHERE id = $1`,
			promptID).Scan(&payload.Word, &payload.Difficulty)
	default:
		return room.PromptPayload{}, apperrors.UnknownGameType(string(gameType))
	}

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return room.PromptPayload{}, apperrors.NotFound("prompt %s not found", id)
		}
		return room.PromptPayload{}, fmt.Errorf("load prompt %s for %s: %w", id, gameType, err)
	}
	return payload, nil
}
