package governance

import "github.com/shopspring/decimal"

var quorumFractions = map[ProposalType]decimal.Decimal{
	TypeDisputeResolution:  decimal.RequireFromString("0.1"),
	TypeAgentSuspension:    decimal.RequireFromString("0.2"),
	TypeServiceSuspension:  decimal.RequireFromString("0.2"),
	TypeParameterChange:    decimal.RequireFromString("0.3"),
	TypeTreasuryAllocation: decimal.RequireFromString("0.4"),
}

var defaultQuorumFraction = decimal.RequireFromString("0.15")

// QuorumFraction 返回提案类型对应的法定人数比例。
func QuorumFraction(t ProposalType) decimal.Decimal {
	if f, ok := quorumFractions[t]; ok {
		return f
	}
	return defaultQuorumFraction
}

// QuorumFor = floor(fraction(type) × totalStaked)。
func QuorumFor(t ProposalType, totalStaked decimal.Decimal) int64 {
	return QuorumFraction(t).Mul(totalStaked).Floor().IntPart()
}

// VotingPower = floor(staked×100 + reputation/100)。
func VotingPower(staked decimal.Decimal, reputation int) int64 {
	return staked.Mul(decimal.NewFromInt(100)).
		Add(decimal.NewFromInt(int64(reputation)).Div(decimal.NewFromInt(100))).
		Floor().IntPart()
}
