// config/config.go
package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Arena    ArenaConfig    `mapstructure:"arena"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MonitorAddress string `mapstructure:"monitor_address"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// ArenaConfig groups the competition parameters: match timing, Elo, stakes
// and the milestone reward schedule.
type ArenaConfig struct {
	Match      MatchConfig     `mapstructure:"match"`
	Elo        EloConfig       `mapstructure:"elo"`
	Stakes     StakesConfig    `mapstructure:"stakes"`
	Milestones []MilestoneTier `mapstructure:"milestones"`
}

type MatchConfig struct {
	MoveTimeout  time.Duration `mapstructure:"move_timeout"`
	GameTimeout  time.Duration `mapstructure:"game_timeout"`
	MaxPlies     int           `mapstructure:"max_plies"`
	MinimaxDepth int           `mapstructure:"minimax_depth"`
}

type EloConfig struct {
	InitialRating    int `mapstructure:"initial_rating"`
	KFactorNew       int `mapstructure:"k_factor_new"`
	KFactorSettled   int `mapstructure:"k_factor_settled"`
	ProvisionalGames int `mapstructure:"provisional_games"`
}

type StakesConfig struct {
	// RakePercent is the flat house cut taken from every pot.
	RakePercent  string        `mapstructure:"rake_percent"`
	MinStake     string        `mapstructure:"min_stake"`
	MaxStake     string        `mapstructure:"max_stake"`
	ChallengeTTL time.Duration `mapstructure:"challenge_ttl"`
}

// MilestoneTier is a one-time reward credited the first time an agent's
// rating reaches the threshold.
type MilestoneTier struct {
	Rating int    `mapstructure:"rating"`
	Reward string `mapstructure:"reward"`
	Name   string `mapstructure:"name"`
}

func setDefaults() {
	viper.SetDefault("server.http_address", ":8080")
	viper.SetDefault("server.rpc_address", ":8081")
	viper.SetDefault("server.monitor_address", ":9090")

	viper.SetDefault("arena.match.move_timeout", "5s")
	viper.SetDefault("arena.match.game_timeout", "5m")
	viper.SetDefault("arena.match.max_plies", 100)
	viper.SetDefault("arena.match.minimax_depth", 5)

	viper.SetDefault("arena.elo.initial_rating", 1500)
	viper.SetDefault("arena.elo.k_factor_new", 32)
	viper.SetDefault("arena.elo.k_factor_settled", 16)
	viper.SetDefault("arena.elo.provisional_games", 30)

	viper.SetDefault("arena.stakes.rake_percent", "5")
	viper.SetDefault("arena.stakes.min_stake", "0.10")
	viper.SetDefault("arena.stakes.max_stake", "100")
	viper.SetDefault("arena.stakes.challenge_ttl", "5m")

	viper.SetDefault("arena.milestones", []map[string]interface{}{
		{"rating": 1600, "reward": "0.50", "name": "Class B"},
		{"rating": 1800, "reward": "1.00", "name": "Class A"},
		{"rating": 2000, "reward": "2.00", "name": "Expert"},
		{"rating": 2200, "reward": "5.00", "name": "Master"},
		{"rating": 2400, "reward": "10.00", "name": "Grandmaster"},
	})
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	setDefaults()
	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		// No config file is fine, defaults and env cover everything.
		err = nil
	}

	err = viper.Unmarshal(&config)
	return
}
