package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ResourceFields 提供资源本地/远端路径与 provider 字段，供引擎、同步器与 API 日志复用。
func ResourceFields(action, localPath, remotePath, provider string) logrus.Fields {
	fields := logrus.Fields{
		"action":     action,
		"local_path": localPath,
		"provider":   provider,
	}
	if remotePath != "" && remotePath != localPath {
		fields["remote_path"] = remotePath
	}
	return fields
}
