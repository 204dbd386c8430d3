package config

import "path/filepath"

const folderEnvVar = "DATA_FOLDER"

type StorageConfig interface {
	GetDataFolder() string
	GetCredentialDBPath() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func (s Storage) GetCredentialDBPath() string {
	return filepath.Join(s.GetDataFolder(), "session.db")
}
