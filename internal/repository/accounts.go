package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guiaperfil/guia-api/internal/domain"
)

// AccountsRepository provides persistence helpers for directory accounts.
type AccountsRepository struct {
	pool *pgxpool.Pool
}

const accountColumns = `
    a.id,
    a.user_id,
    a.type,
    a.name,
    a.username,
    a.profile_url,
    a.description,
    a.created_at,
    a.updated_at
`

// AccountCreateParams bundles the fields required to register an account.
type AccountCreateParams struct {
	OwnerID     string
	Type        domain.AccountType
	Name        string
	Username    *string
	ProfileURL  string
	Description *string
	CategoryIDs []string
}

// AccountUpdateParams carries the mutable fields of an account.
type AccountUpdateParams struct {
	Name        string
	Username    *string
	ProfileURL  string
	Description *string
	CategoryIDs []string
}

// AccountListFilters encapsulates search and pagination options for the
// public directory.
type AccountListFilters struct {
	Search     *string
	Type       *domain.AccountType
	CategoryID *string
	OwnerID    *string
	Limit      int
	Cursor     *AccountCursor
}

// AccountCursor allows stable pagination by created_at/id.
type AccountCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// AccountListResult returns the paginated payload.
type AccountListResult struct {
	Items      []domain.Account
	NextCursor *string
}

// Create inserts a new account and its category links, returning the stored entity.
func (r *AccountsRepository) Create(ctx context.Context, params AccountCreateParams) (domain.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Account{}, fmt.Errorf("begin create account: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
        INSERT INTO accounts (user_id, type, name, username, profile_url, description)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING %s
    `, strings.ReplaceAll(accountColumns, "a.", ""))

	account, err := scanAccount(tx.QueryRow(ctx, query,
		params.OwnerID, params.Type, params.Name, params.Username, params.ProfileURL, params.Description))
	if err != nil {
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}

	if err := replaceCategoryLinks(ctx, tx, account.ID, params.CategoryIDs); err != nil {
		return domain.Account{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Account{}, fmt.Errorf("commit create account: %w", err)
	}

	return r.GetByID(ctx, account.ID)
}

// GetByID fetches an account with its categories.
func (r *AccountsRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts a WHERE a.id = $1`, accountColumns)

	account, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrNotFound
		}
		return domain.Account{}, err
	}

	categories, err := r.categoriesFor(ctx, []string{account.ID})
	if err != nil {
		return domain.Account{}, err
	}
	account.Categories = categories[account.ID]
	return account, nil
}

// Update replaces the mutable fields and category links of an account.
func (r *AccountsRepository) Update(ctx context.Context, id string, params AccountUpdateParams) (domain.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Account{}, fmt.Errorf("begin update account: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
        UPDATE accounts
        SET name = $2, username = $3, profile_url = $4, description = $5, updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, strings.ReplaceAll(accountColumns, "a.", ""))

	account, err := scanAccount(tx.QueryRow(ctx, query, id, params.Name, params.Username, params.ProfileURL, params.Description))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("update account: %w", err)
	}

	if err := replaceCategoryLinks(ctx, tx, account.ID, params.CategoryIDs); err != nil {
		return domain.Account{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Account{}, fmt.Errorf("commit update account: %w", err)
	}

	return r.GetByID(ctx, account.ID)
}

// Delete removes an account. Favorites, ratings, and category links cascade.
func (r *AccountsRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns accounts matching the provided filters, newest first.
func (r *AccountsRepository) List(ctx context.Context, filters AccountListFilters) (AccountListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	} else if filters.Limit > 100 {
		filters.Limit = 100
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Search != nil && strings.TrimSpace(*filters.Search) != "" {
		q := "%" + strings.TrimSpace(*filters.Search) + "%"
		p1 := arg(q)
		p2 := arg(q)
		p3 := arg(q)
		where = append(where, fmt.Sprintf("(a.name ILIKE %s OR a.username ILIKE %s OR a.description ILIKE %s)", p1, p2, p3))
	}
	if filters.Type != nil {
		where = append(where, fmt.Sprintf("a.type = %s", arg(string(*filters.Type))))
	}
	if filters.CategoryID != nil {
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM accounts_categories ac WHERE ac.account_id = a.id AND ac.category_id = %s)",
			arg(*filters.CategoryID)))
	}
	if filters.OwnerID != nil {
		where = append(where, fmt.Sprintf("a.user_id = %s", arg(*filters.OwnerID)))
	}
	if filters.Cursor != nil {
		cursorCreated := arg(filters.Cursor.CreatedAt)
		cursorID := arg(filters.Cursor.ID)
		where = append(where, fmt.Sprintf("(a.created_at, a.id) < (%s, %s)", cursorCreated, cursorID))
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(accountColumns)
	queryBuilder.WriteString(" FROM accounts a")
	if len(where) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(where, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY a.created_at DESC, a.id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit))

	rows, err := r.pool.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return AccountListResult{}, err
	}
	defer rows.Close()

	items := make([]domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return AccountListResult{}, err
		}
		items = append(items, account)
	}
	if err := rows.Err(); err != nil {
		return AccountListResult{}, err
	}

	if err := r.attachCategories(ctx, items); err != nil {
		return AccountListResult{}, err
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		cursor := AccountCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		token, err := encodeCursor(cursor)
		if err != nil {
			return AccountListResult{}, err
		}
		nextCursor = &token
	}

	return AccountListResult{Items: items, NextCursor: nextCursor}, nil
}

func (r *AccountsRepository) attachCategories(ctx context.Context, accounts []domain.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(accounts))
	for _, account := range accounts {
		ids = append(ids, account.ID)
	}
	byAccount, err := r.categoriesFor(ctx, ids)
	if err != nil {
		return err
	}
	for i := range accounts {
		accounts[i].Categories = byAccount[accounts[i].ID]
	}
	return nil
}

// categoriesFor loads category links for a batch of accounts in one query.
func (r *AccountsRepository) categoriesFor(ctx context.Context, accountIDs []string) (map[string][]domain.Category, error) {
	const query = `
        SELECT ac.account_id, c.id, c.name, c.color, c.created_at
        FROM accounts_categories ac
        JOIN categories c ON c.id = ac.category_id
        WHERE ac.account_id = ANY($1)
        ORDER BY c.name
    `

	rows, err := r.pool.Query(ctx, query, accountIDs)
	if err != nil {
		return nil, fmt.Errorf("load account categories: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.Category)
	for rows.Next() {
		var accountID string
		var category domain.Category
		if err := rows.Scan(&accountID, &category.ID, &category.Name, &category.Color, &category.CreatedAt); err != nil {
			return nil, err
		}
		result[accountID] = append(result[accountID], category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func replaceCategoryLinks(ctx context.Context, tx pgx.Tx, accountID string, categoryIDs []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM accounts_categories WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("clear category links: %w", err)
	}
	for _, categoryID := range categoryIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO accounts_categories (account_id, category_id) VALUES ($1, $2)`,
			accountID, categoryID)
		if err != nil {
			return fmt.Errorf("link category %s: %w", categoryID, err)
		}
	}
	return nil
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var account domain.Account
	var accountType string
	err := row.Scan(
		&account.ID,
		&account.OwnerID,
		&accountType,
		&account.Name,
		&account.Username,
		&account.ProfileURL,
		&account.Description,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, err
	}
	account.Type = domain.AccountType(accountType)
	return account, nil
}

func encodeCursor(c AccountCursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token into an AccountCursor.
func DecodeCursor(token string) (*AccountCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor AccountCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	return &cursor, nil
}
