// Package shader is the compiler front end shared by the platforms. Source is
// WGSL; targets keep the D3D profile names.
package shader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/andewx/diesel/driver"
	"github.com/pkg/errors"
)

// Profile is a parsed target such as vs_5_0.
type Profile struct {
	Stage driver.ShaderStage
	Major int
	Minor int
}

var supportedModels = map[[2]int]bool{
	{4, 0}: true,
	{4, 1}: true,
	{5, 0}: true,
}

// ParseProfile accepts vs_4_0, vs_4_1, vs_5_0 and the ps_ equivalents.
func ParseProfile(target string) (Profile, error) {
	parts := strings.Split(target, "_")
	if len(parts) != 3 {
		return Profile{}, errors.Errorf("invalid target profile %q", target)
	}
	var p Profile
	switch parts[0] {
	case "vs":
		p.Stage = driver.StageVertex
	case "ps":
		p.Stage = driver.StagePixel
	default:
		return Profile{}, errors.Errorf("unsupported shader stage in profile %q", target)
	}
	var err error
	if p.Major, err = strconv.Atoi(parts[1]); err != nil {
		return Profile{}, errors.Errorf("invalid target profile %q", target)
	}
	if p.Minor, err = strconv.Atoi(parts[2]); err != nil {
		return Profile{}, errors.Errorf("invalid target profile %q", target)
	}
	if !supportedModels[[2]int{p.Major, p.Minor}] {
		return Profile{}, errors.Errorf("unsupported shader model in profile %q", target)
	}
	return p, nil
}

func (p Profile) String() string {
	prefix := "vs"
	if p.Stage == driver.StagePixel {
		prefix = "ps"
	}
	return fmt.Sprintf("%s_%d_%d", prefix, p.Major, p.Minor)
}
