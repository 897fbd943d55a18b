package config

import "time"

type Config struct {
	Debug      bool       `mapstructure:"debug"`
	Log        Log        `mapstructure:"log"`
	Server     Server     `mapstructure:"server"`
	Uploads    Uploads    `mapstructure:"uploads"`
	Database   Database   `mapstructure:"database"`
	Queue      Queue      `mapstructure:"queue"`
	Processing Processing `mapstructure:"processing"`
	MediaTypes MediaTypes `mapstructure:"media_types"`
}

type Log struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Path       string `mapstructure:"path" validate:"omitempty,abspath"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"min=0"`
	Compress   bool   `mapstructure:"compress"`
}

type Server struct {
	Address   string       `mapstructure:"address" validate:"required,hostname|ip"`
	Port      int          `mapstructure:"port" validate:"required,min=1,max=65535"`
	PublicUrl string       `mapstructure:"public_url" validate:"required,url"`
	Limits    ServerLimits `mapstructure:"limits"`
}

type ServerLimits struct {
	MaxPayloadSize       uint `mapstructure:"max_payload_size" validate:"required"`
	MaxMultipartMem      uint `mapstructure:"max_multipart_mem" validate:"required"`
	SubmissionsPerMinute int  `mapstructure:"submissions_per_minute" validate:"min=0"`
}

// Uploads holds the site-wide admission limits. A nil limit means unlimited.
type Uploads struct {
	UploadLimit   *int64 `mapstructure:"upload_limit" validate:"omitempty,min=0"`
	MaxFileSize   *int64 `mapstructure:"max_file_size" validate:"omitempty,min=0"`
	TagsMaxLength int    `mapstructure:"tags_max_length" validate:"min=0"`
}

type Database struct {
	Driver      string  `mapstructure:"driver" validate:"required,oneof=postgres mysql sqlite"`
	DSN         string  `mapstructure:"dsn" validate:"required"`
	TablePrefix *string `mapstructure:"table_prefix" validate:"omitempty,identifier"`
}

type Queue struct {
	Strategy   string                   `mapstructure:"strategy" validate:"required,oneof=filesystem s3 noop"`
	Filesystem *FilesystemQueueStrategy `mapstructure:"filesystem" validate:"required_if=Strategy filesystem"`
	S3         *S3QueueStrategy         `mapstructure:"s3" validate:"required_if=Strategy s3"`
}

type FilesystemQueueStrategy struct {
	Path        string `mapstructure:"path" validate:"required,abspath"`
	PathPattern string `mapstructure:"path_pattern" validate:"omitempty,pathpattern"`
}

type S3QueueStrategy struct {
	AccessKeyId    string `mapstructure:"access_key_id" validate:"required"`
	SecretKeyId    string `mapstructure:"secret_key_id" validate:"required"`
	Region         string `mapstructure:"region"`
	Bucket         string `mapstructure:"bucket" validate:"required"`
	Endpoint       string `mapstructure:"endpoint" validate:"omitempty,url|hostname_port|hostname"`
	Prefix         string `mapstructure:"prefix"`
	PathPattern    string `mapstructure:"path_pattern" validate:"omitempty,pathpattern"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	DisableSSL     bool   `mapstructure:"disable_ssl"`
}

type Processing struct {
	Strategy          string            `mapstructure:"strategy" validate:"required,oneof=local redis"`
	Workers           int               `mapstructure:"workers" validate:"min=0"`
	Redis             *RedisProcessing  `mapstructure:"redis" validate:"required_if=Strategy redis"`
	PushHubs          []string          `mapstructure:"push_hubs" validate:"dive,url"`
	GarbageCollection GarbageCollection `mapstructure:"gc"`
}

type RedisProcessing struct {
	Address  string `mapstructure:"address" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
	Key      string `mapstructure:"key"`
}

type GarbageCollection struct {
	Schedule string        `mapstructure:"schedule" validate:"omitempty,cronspec"`
	MaxAge   time.Duration `mapstructure:"max_age" validate:"min=0"`
}

type MediaTypes struct {
	Enabled []string `mapstructure:"enabled" validate:"unique,dive,oneof=image audio video"`
	TempDir string   `mapstructure:"temp_dir" validate:"omitempty,abspath"`

	// FFprobe is the executable audio and video processing shell out to.
	FFprobe string `mapstructure:"ffprobe"`
}
