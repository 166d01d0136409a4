package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound           = errors.New("admin not found")
	ErrEmailExists        = errors.New("admin with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmptyPassword      = errors.New("password cannot be empty")
)

type Admin struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Repository interface {
	Create(ctx context.Context, a *Admin) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Admin, error)
	GetByEmail(ctx context.Context, email string) (*Admin, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, a *Admin) (uuid.UUID, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to generate admin ID: %w", err)
	}

	query := `
		INSERT INTO admins (id, email, first_name, last_name, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query, id, a.Email, a.FirstName, a.LastName, a.PasswordHash).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return uuid.Nil, ErrEmailExists
		}
		return uuid.Nil, fmt.Errorf("repository: failed to insert admin: %w", err)
	}
	return id, nil
}

const adminColumns = `id, email, first_name, last_name, password_hash, created_at, updated_at`

func (r *postgresRepository) get(ctx context.Context, where string, arg any) (*Admin, error) {
	var a Admin
	err := r.db.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE `+where, arg).
		Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select admin: %w", err)
	}
	return &a, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Admin, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (*Admin, error) {
	return r.get(ctx, "lower(email) = lower($1)", email)
}

type Service interface {
	CreateAdmin(ctx context.Context, a *Admin, password string) (*Admin, error)
	GetAdminByID(ctx context.Context, id uuid.UUID) (*Admin, error)
	// Authenticate does not tell an unknown email from a wrong password.
	Authenticate(ctx context.Context, email, password string) (*Admin, error)
}

type service struct {
	repo Repository
	cost int
	// compared against for unknown emails so both failures take similar time
	dummyHash []byte
}

func NewService(repo Repository) Service {
	return newService(repo, bcrypt.DefaultCost)
}

// NewServiceWithCost is NewService with a custom bcrypt cost.
func NewServiceWithCost(repo Repository, cost int) Service {
	return newService(repo, cost)
}

func newService(repo Repository, cost int) *service {
	dummy, err := bcrypt.GenerateFromPassword([]byte("storefront-dummy-password"), cost)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to prepare dummy admin hash")
	}
	return &service{repo: repo, cost: cost, dummyHash: dummy}
}

func (s *service) CreateAdmin(ctx context.Context, a *Admin, password string) (*Admin, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to generate password hash")
		return nil, fmt.Errorf("service: internal error hashing password: %w", err)
	}
	a.Email = strings.TrimSpace(a.Email)
	a.PasswordHash = string(hash)

	id, err := s.repo.Create(ctx, a)
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		log.Error().Err(err).Str("email", a.Email).Msg("service: failed to create admin")
		return nil, fmt.Errorf("service: failed to save admin: %w", err)
	}
	a.ID = id

	log.Info().Stringer("admin_id", id).Msg("service: admin created")
	return a, nil
}

func (s *service) GetAdminByID(ctx context.Context, id uuid.UUID) (*Admin, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("admin_id", id).Msg("service: failed to get admin")
		return nil, fmt.Errorf("service: failed to get admin by id '%s': %w", id, err)
	}
	return a, nil
}

func (s *service) Authenticate(ctx context.Context, email, password string) (*Admin, error) {
	a, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			log.Warn().Msg("service: admin login for unknown email")
			return nil, ErrInvalidCredentials
		}
		log.Error().Err(err).Msg("service: failed to load admin for login")
		return nil, fmt.Errorf("service: failed to authenticate admin: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		log.Warn().Stringer("admin_id", a.ID).Msg("service: admin login with wrong password")
		return nil, ErrInvalidCredentials
	}

	log.Info().Stringer("admin_id", a.ID).Msg("service: admin authenticated")
	return a, nil
}
