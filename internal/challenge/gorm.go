package challenge

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/wordfill-backend/internal/puzzle"
)

// Postgres error codes we translate to ErrNotFound.
const (
	pgInvalidTextRepresentation = "22P02" // e.g. malformed uuid in a lookup
	pgForeignKeyViolation       = "23503" // participant for a missing challenge
)

// OpenPostgres connects gorm to Postgres through the pgx driver.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Challenge{}, &Participant{})
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) CreateChallenge(ctx context.Context, c *Challenge) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create challenge: %w", translate(err))
	}
	return nil
}

func (r *GormRepository) GetChallenge(ctx context.Context, id string) (*Challenge, error) {
	var c Challenge
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *GormRepository) DeleteChallenge(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("challenge_id = ?", id).Delete(&Participant{}).Error; err != nil {
			return translate(err)
		}
		res := tx.Delete(&Challenge{}, "id = ?", id)
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *GormRepository) StartChallenge(ctx context.Context, id string, p puzzle.Puzzle) (*Challenge, error) {
	res := r.db.WithContext(ctx).
		Model(&Challenge{}).
		Where("id = ? AND status = ?", id, StatusAvailable).
		Updates(Challenge{Status: StatusRunning, Text: p.Text, Placeholders: p.Placeholders})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to start challenge: %w", translate(res.Error))
	}

	c, err := r.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return c, ErrNotAvailable
	}
	return c, nil
}

func (r *GormRepository) AddParticipant(ctx context.Context, p *Participant) error {
	if err := r.db.WithContext(ctx).Omit("Challenge").Create(p).Error; err != nil {
		return fmt.Errorf("failed to add participant: %w", translate(err))
	}
	return nil
}

func (r *GormRepository) GetParticipant(ctx context.Context, id string) (*Participant, error) {
	var p Participant
	if err := r.db.WithContext(ctx).Preload("Challenge").First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *GormRepository) CountParticipants(ctx context.Context, challengeID string) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Participant{}).Where("challenge_id = ?", challengeID).Count(&n).Error
	if err != nil {
		return 0, translate(err)
	}
	return int(n), nil
}

func (r *GormRepository) TeamCounts(ctx context.Context, challengeID string) (map[int]int, error) {
	var rows []struct {
		Team int
		Qty  int
	}
	err := r.db.WithContext(ctx).
		Model(&Participant{}).
		Select("team, count(*) AS qty").
		Where("challenge_id = ?", challengeID).
		Group("team").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	counts := make(map[int]int, len(rows))
	for _, row := range rows {
		counts[row.Team] = row.Qty
	}
	return counts, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgInvalidTextRepresentation, pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.Message)
		}
	}
	return err
}
