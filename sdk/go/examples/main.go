package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"X402-Registry/sdk/go/registry"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "registry api base url")
	token := flag.String("token", "", "operator bearer token")
	proposer := flag.String("proposer", "alice", "proposing agent id")
	target := flag.String("target", "carol", "agent to suspend")
	flag.Parse()

	client, err := registry.NewClient(*baseURL, nil)
	if err != nil {
		log.Fatalf("create client: %v", err)
	}
	if *token != "" {
		client.SetAccessToken(*token)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	proposal, err := client.CreateProposal(ctx, registry.NewProposal{
		ProposerID:          *proposer,
		Type:                "AGENT_SUSPENSION",
		Title:               "suspend " + *target,
		TargetAgentID:       *target,
		VotingDurationHours: 24,
	})
	if err != nil {
		log.Fatalf("create proposal: %v", err)
	}
	fmt.Printf("proposal %s opened, quorum %d\n", proposal.ID, proposal.QuorumRequired)

	power, err := client.VotingPower(ctx, *proposer)
	if err != nil {
		log.Fatalf("voting power: %v", err)
	}
	if _, err := client.CastVote(ctx, proposal.ID, registry.Ballot{VoterID: *proposer, VoteType: "FOR", VotingPower: power}); err != nil {
		log.Fatalf("cast vote: %v", err)
	}

	closed, err := client.CloseProposal(ctx, proposal.ID)
	if err != nil {
		log.Fatalf("close proposal: %v", err)
	}
	fmt.Printf("proposal %s finished as %s\n", closed.ID, closed.Status)
}
