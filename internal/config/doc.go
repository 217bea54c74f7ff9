// Package config 负责加载注册中心守护进程的 JSON 配置，并在缺省时填充默认值。
package config
