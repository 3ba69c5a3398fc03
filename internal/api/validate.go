package api

import (
	"fmt"
	"math"
	"strings"

	"topsolver/internal/model"
	"topsolver/internal/route"
)

func validateSolveRequest(req *model.SolveRequest) error {
	if req.InstanceID == "" && req.Instance == nil {
		return fmt.Errorf("one of instanceId or instance is required")
	}
	if req.InstanceID != "" && req.Instance != nil {
		return fmt.Errorf("instanceId and instance are mutually exclusive")
	}
	if strings.TrimSpace(req.Solver) == "" {
		return fmt.Errorf("solver is required")
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	if req.Instance != nil {
		return validateInstanceIn(req.Instance)
	}
	return nil
}

func validateInstanceIn(in *model.InstanceIn) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(in.Text) != "" {
		if len(in.Points) > 0 {
			return fmt.Errorf("points and text are mutually exclusive")
		}
		return nil
	}
	if len(in.Points) < 2 {
		return fmt.Errorf("points must contain the start and end points")
	}
	if len(in.Points) > route.MaxPoints {
		return fmt.Errorf("points must not exceed %d", route.MaxPoints)
	}
	if in.Cars < 1 || in.Cars > route.MaxCars {
		return fmt.Errorf("cars must be between 1 and %d", route.MaxCars)
	}
	if in.MaxTime < 0 || math.IsNaN(in.MaxTime) || math.IsInf(in.MaxTime, 0) {
		return fmt.Errorf("maxTime must be a finite number >= 0")
	}
	for i, p := range in.Points {
		if p.Profit < 0 {
			return fmt.Errorf("point %d: profit must be >= 0", i)
		}
	}
	return nil
}
