package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	xerrors "X402-Registry/internal/errors"
)

// Seed 定义启动时写入注册表的初始数据。
type Seed struct {
	Agents   []Agent   `json:"agents"`
	Services []Service `json:"services"`
	Disputes []Dispute `json:"disputes"`
	Payments []Payment `json:"payments"`
}

// LoadSeed 从 JSON 文件读取种子数据。
func LoadSeed(path string) (Seed, error) {
	var seed Seed
	raw, err := os.ReadFile(path)
	if err != nil {
		return seed, xerrors.Wrap(CodeInvalidSeed, err, "读取注册表种子文件失败")
	}
	if err := json.Unmarshal(raw, &seed); err != nil {
		return seed, xerrors.Wrap(CodeInvalidSeed, err, "解析注册表种子文件失败")
	}
	if err := seed.Validate(); err != nil {
		return seed, err
	}
	return seed, nil
}

// Validate 检查种子数据的基本约束，并补齐缺省状态。
func (s *Seed) Validate() error {
	for i := range s.Agents {
		a := &s.Agents[i]
		if strings.TrimSpace(a.ID) == "" {
			return xerrors.New(CodeInvalidSeed, fmt.Sprintf("agents[%d] 缺少 id", i))
		}
		if a.ReputationScore < 0 || a.ReputationScore > MaxReputation {
			return xerrors.New(CodeInvalidSeed, fmt.Sprintf("agent %s 信誉分超出范围", a.ID))
		}
		if a.Status == "" {
			a.Status = AgentActive
		}
	}
	for i := range s.Services {
		svc := &s.Services[i]
		if strings.TrimSpace(svc.ID) == "" {
			return xerrors.New(CodeInvalidSeed, fmt.Sprintf("services[%d] 缺少 id", i))
		}
		if svc.Status == "" {
			svc.Status = ServiceActive
		}
	}
	for i := range s.Disputes {
		d := &s.Disputes[i]
		if strings.TrimSpace(d.ID) == "" || strings.TrimSpace(d.AgentID) == "" {
			return xerrors.New(CodeInvalidSeed, fmt.Sprintf("disputes[%d] 缺少 id 或 agent_id", i))
		}
		if d.Status == "" {
			d.Status = DisputeOpen
		}
	}
	for i := range s.Payments {
		p := &s.Payments[i]
		if strings.TrimSpace(p.ID) == "" {
			return xerrors.New(CodeInvalidSeed, fmt.Sprintf("payments[%d] 缺少 id", i))
		}
		if p.Status == "" {
			p.Status = PaymentPending
		}
	}
	return nil
}
