package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/snehendu098/ghost/clearclient/pkg/sign"
)

const defaultDBPath = "clearclient.db"

var (
	ErrNotFound  = errors.New("record not found")
	ErrEmptyName = errors.New("name cannot be empty")
	ErrEmptyURL  = errors.New("URL cannot be empty")
)

// Storage keeps the CLI's wallets and chain RPC endpoints. Session and
// balance state is never persisted.
type Storage struct {
	db *gorm.DB
}

// Open connects to dsn. postgres:// and postgresql:// URLs select Postgres;
// anything else is a SQLite file path.
func Open(dsn string) (*Storage, error) {
	if dsn == "" {
		dsn = defaultDBPath
	}

	var dial gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dial = postgres.Open(dsn)
	case strings.HasPrefix(dsn, "file:"):
		dial = sqlite.Open(dsn)
	default:
		dial = sqlite.Open(fmt.Sprintf("file:%s?cache=shared", dsn))
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&WalletDTO{}, &ChainRPCDTO{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database schema: %w", err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type WalletDTO struct {
	Address    string    `gorm:"column:address;primaryKey"`
	Name       string    `gorm:"column:name;not null;unique"`
	PrivateKey string    `gorm:"column:private_key;not null;unique"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

func (WalletDTO) TableName() string {
	return "wallets"
}

// AddWallet stores a named private key and returns the stored record.
func (s *Storage) AddWallet(name, privateKeyHex string) (*WalletDTO, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	wallet, err := sign.NewEthereumWallet(privateKeyHex, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}

	dto := WalletDTO{
		Address:    wallet.Address().Hex(),
		Name:       name,
		PrivateKey: wallet.PrivateKeyHex(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.Create(&dto).Error; err != nil {
		return nil, fmt.Errorf("failed to add wallet: %w", err)
	}
	return &dto, nil
}

func (s *Storage) Wallets() ([]WalletDTO, error) {
	var wallets []WalletDTO
	if err := s.db.Order("created_at ASC").Find(&wallets).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve wallets: %w", err)
	}
	return wallets, nil
}

func (s *Storage) WalletByName(name string) (*WalletDTO, error) {
	var wallet WalletDTO
	if err := s.db.Where("name = ?", name).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: wallet %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to retrieve wallet: %w", err)
	}
	return &wallet, nil
}

func (s *Storage) DeleteWallet(name string) error {
	res := s.db.Where("name = ?", name).Delete(&WalletDTO{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete wallet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: wallet %s", ErrNotFound, name)
	}
	return nil
}

type ChainRPCDTO struct {
	URL        string    `gorm:"column:url;primaryKey"`
	ChainID    uint64    `gorm:"column:chain_id;not null;index"`
	LastUsedAt time.Time `gorm:"column:last_used_at;not null"`
}

func (ChainRPCDTO) TableName() string {
	return "chain_rpcs"
}

func (s *Storage) AddChainRPC(url string, chainID uint64) error {
	if url == "" {
		return ErrEmptyURL
	}

	dto := ChainRPCDTO{
		URL:        url,
		ChainID:    chainID,
		LastUsedAt: time.Unix(0, 0).UTC(),
	}
	if err := s.db.Create(&dto).Error; err != nil {
		return fmt.Errorf("failed to add chain RPC: %w", err)
	}
	return nil
}

// ChainRPCs returns the endpoints of chainID, least recently used first.
func (s *Storage) ChainRPCs(chainID uint64) ([]ChainRPCDTO, error) {
	var rpcs []ChainRPCDTO
	if err := s.db.Where("chain_id = ?", chainID).Order("last_used_at ASC").Find(&rpcs).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve chain RPCs: %w", err)
	}
	return rpcs, nil
}

func (s *Storage) MarkChainRPCUsed(url string) error {
	if url == "" {
		return ErrEmptyURL
	}
	if err := s.db.Model(&ChainRPCDTO{}).Where("url = ?", url).
		Update("last_used_at", time.Now().UTC()).Error; err != nil {
		return fmt.Errorf("failed to update chain RPC usage: %w", err)
	}
	return nil
}
