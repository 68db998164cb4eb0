// Package analytic provides closed-form field providers for benchmark PDEs:
// heat, Burgers, and KdV. Every derivative is evaluated from the exact
// solution, so the data satisfies its governing equation to machine
// precision. Useful for seeding discovery runs and for calibrating solver
// settings against a known ground truth.
package analytic

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
	"github.com/corvid-labs/fieldlaw/internal/core/ports/driven"
)

// DefaultViscosity is the diffusion coefficient for heat and Burgers data.
const DefaultViscosity = 0.01

// DefaultWavenumber is the spatial frequency of the base mode.
const DefaultWavenumber = 2 * math.Pi

// DefaultAmplitude is the Burgers mode weight. Must stay below 1 so the
// Cole-Hopf denominator never vanishes.
const DefaultAmplitude = 0.8

// DefaultAdvection is the KdV nonlinear coefficient.
const DefaultAdvection = 1.0

// DefaultDispersion is the KdV third-order coefficient.
const DefaultDispersion = 0.01

// DefaultWaveSpeed is the Burgers decay reference and KdV soliton speed.
const DefaultWaveSpeed = 1.0

// DefaultSolitonCenter is where the KdV soliton peaks at t = 0.
const DefaultSolitonCenter = 0.3

// values holds the field and its derivatives at one point.
type values struct {
	u, ux, uxx, uxxx, ut float64
}

func (v values) derivative(name string) (float64, bool) {
	switch name {
	case "u_x":
		return v.ux, true
	case "u_xx":
		return v.uxx, true
	case "u_xxx":
		return v.uxxx, true
	case "u_t":
		return v.ut, true
	}
	return 0, false
}

// Provider evaluates one benchmark PDE solution on a rectangular domain.
// It implements the FieldProvider interface.
type Provider struct {
	name string
	eval func(x, t float64) values

	nu         float64
	wavenumber float64
	amplitude  float64
	advection  float64
	dispersion float64
	waveSpeed  float64
	center     float64

	xMin, xMax float64
	tMin, tMax float64

	noise float64
	rng   *rand.Rand
}

// Ensure Provider implements the interface.
var _ driven.FieldProvider = (*Provider)(nil)

// Option configures a provider.
type Option func(*Provider)

// WithViscosity sets the diffusion coefficient.
func WithViscosity(nu float64) Option {
	return func(p *Provider) {
		if nu > 0 {
			p.nu = nu
		}
	}
}

// WithWavenumber sets the base spatial frequency.
func WithWavenumber(k float64) Option {
	return func(p *Provider) {
		if k > 0 {
			p.wavenumber = k
		}
	}
}

// WithAmplitude sets the Burgers mode weight, in (0, 1).
func WithAmplitude(a float64) Option {
	return func(p *Provider) {
		if a > 0 && a < 1 {
			p.amplitude = a
		}
	}
}

// WithAdvection sets the KdV nonlinear coefficient.
func WithAdvection(alpha float64) Option {
	return func(p *Provider) {
		if alpha != 0 {
			p.advection = alpha
		}
	}
}

// WithDispersion sets the KdV third-order coefficient.
func WithDispersion(beta float64) Option {
	return func(p *Provider) {
		if beta > 0 {
			p.dispersion = beta
		}
	}
}

// WithWaveSpeed sets the traveling-wave speed.
func WithWaveSpeed(c float64) Option {
	return func(p *Provider) {
		if c > 0 {
			p.waveSpeed = c
		}
	}
}

// WithCenter sets where the KdV soliton peaks at t = 0.
func WithCenter(x0 float64) Option {
	return func(p *Provider) {
		p.center = x0
	}
}

// WithDomain sets the rectangle the provider will evaluate on.
func WithDomain(xMin, xMax, tMin, tMax float64) Option {
	return func(p *Provider) {
		if xMin < xMax && tMin <= tMax {
			p.xMin, p.xMax = xMin, xMax
			p.tMin, p.tMax = tMin, tMax
		}
	}
}

// WithNoise adds iid Gaussian noise of the given standard deviation to the
// value and every requested derivative. The sigma is recorded on each
// sample's Noise field.
func WithNoise(sigma float64) Option {
	return func(p *Provider) {
		if sigma >= 0 {
			p.noise = sigma
		}
	}
}

// WithRNG sets the noise source, for reproducible noisy datasets.
func WithRNG(rng *rand.Rand) Option {
	return func(p *Provider) {
		if rng != nil {
			p.rng = rng
		}
	}
}

func newProvider(name string, tMax float64, opts []Option) *Provider {
	p := &Provider{
		name:       name,
		nu:         DefaultViscosity,
		wavenumber: DefaultWavenumber,
		amplitude:  DefaultAmplitude,
		advection:  DefaultAdvection,
		dispersion: DefaultDispersion,
		waveSpeed:  DefaultWaveSpeed,
		center:     DefaultSolitonCenter,
		xMin:       0,
		xMax:       1,
		tMin:       0,
		tMax:       tMax,
		rng:        rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewHeat creates a provider for the heat equation u_t = nu*u_xx. The
// solution superposes two Fourier modes decaying at their own rates, so u
// and u_xx stay linearly independent across the dataset.
func NewHeat(opts ...Option) *Provider {
	p := newProvider("heat", 0.5, opts)
	p.eval = p.heatValues
	return p
}

// NewBurgers creates a provider for the viscous Burgers equation
// u_t = nu*u_xx - u*u_x. The solution is the Cole-Hopf transform
// u = -2*nu*(ln phi)_x of a strictly positive heat-equation solution phi,
// so it is exact without being a traveling wave.
func NewBurgers(opts ...Option) *Provider {
	p := newProvider("burgers", 2.0, opts)
	p.eval = p.burgersValues
	return p
}

// NewKdV creates a provider for the Korteweg-de Vries equation
// u_t = -alpha*u*u_x - beta*u_xxx, evaluated on the exact single-soliton
// solution. Soliton data also satisfies u_t = -c*u_x, so term libraries
// containing u_x alongside the true terms are rank deficient on it.
func NewKdV(opts ...Option) *Provider {
	p := newProvider("kdv", 0.5, opts)
	p.eval = p.kdvValues
	return p
}

// Name identifies the provider in diagnostics.
func (p *Provider) Name() string { return p.name }

// Grid returns an nx-by-nt mesh covering the provider's domain, flattened
// time-major: every x position at the first time, then the next time.
func (p *Provider) Grid(nx, nt int) []domain.Point {
	if nx < 1 || nt < 1 {
		return nil
	}
	xStep, tStep := 0.0, 0.0
	if nx > 1 {
		xStep = (p.xMax - p.xMin) / float64(nx-1)
	}
	if nt > 1 {
		tStep = (p.tMax - p.tMin) / float64(nt-1)
	}
	points := make([]domain.Point, 0, nx*nt)
	for ti := 0; ti < nt; ti++ {
		t := p.tMin + float64(ti)*tStep
		for xi := 0; xi < nx; xi++ {
			points = append(points, domain.Point{"x": p.xMin + float64(xi)*xStep, "t": t})
		}
	}
	return points
}

// Evaluate returns one sample per point. Points outside the domain and
// derivative names the closed form cannot supply fail with
// domain.ErrEvaluation.
func (p *Provider) Evaluate(ctx context.Context, points []domain.Point, derivatives []string) ([]domain.Sample, error) {
	samples := make([]domain.Sample, 0, len(points))
	for i, pt := range points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x, ok := pt["x"]
		if !ok {
			return nil, fmt.Errorf("%w: point %d: missing coordinate %q", domain.ErrEvaluation, i, "x")
		}
		t, ok := pt["t"]
		if !ok {
			return nil, fmt.Errorf("%w: point %d: missing coordinate %q", domain.ErrEvaluation, i, "t")
		}
		if x < p.xMin || x > p.xMax || t < p.tMin || t > p.tMax {
			return nil, fmt.Errorf("%w: point %d: (x=%g, t=%g) outside domain [%g, %g]x[%g, %g]",
				domain.ErrEvaluation, i, x, t, p.xMin, p.xMax, p.tMin, p.tMax)
		}

		v := p.eval(x, t)
		derivs := make(map[string]float64, len(derivatives))
		for _, name := range derivatives {
			d, ok := v.derivative(name)
			if !ok {
				return nil, fmt.Errorf("%w: unsupported derivative %q (have u_x, u_xx, u_xxx, u_t)",
					domain.ErrEvaluation, name)
			}
			derivs[name] = d
		}

		s := domain.Sample{
			Coordinates: domain.Point{"x": x, "t": t},
			Value:       v.u,
			Derivatives: derivs,
			Noise:       p.noise,
		}
		if p.noise > 0 {
			s.Value += p.noise * p.rng.NormFloat64()
			for _, name := range derivatives {
				s.Derivatives[name] += p.noise * p.rng.NormFloat64()
			}
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// heatValues evaluates u = e1*sin(kx) + (1/2)*e2*sin(2kx) with each mode
// decaying at nu*k_i^2.
func (p *Provider) heatValues(x, t float64) values {
	k := p.wavenumber
	e1 := math.Exp(-p.nu * k * k * t)
	e2 := math.Exp(-4 * p.nu * k * k * t)
	s1, c1 := math.Sincos(k * x)
	s2, c2 := math.Sincos(2 * k * x)
	return values{
		u:    e1*s1 + 0.5*e2*s2,
		ux:   k * (e1*c1 + e2*c2),
		uxx:  -k * k * (e1*s1 + 2*e2*s2),
		uxxx: -k * k * k * (e1*c1 + 4*e2*c2),
		ut:   -p.nu * k * k * (e1*s1 + 2*e2*s2),
	}
}

// burgersValues evaluates the Cole-Hopf solution through the log-derivatives
// of phi = 1 + amplitude*exp(-nu*k^2*t)*cos(kx).
func (p *Provider) burgersValues(x, t float64) values {
	nu, k := p.nu, p.wavenumber
	e := p.amplitude * math.Exp(-nu*k*k*t)
	s, c := math.Sincos(k * x)
	phi := 1 + e*c

	r1 := -k * e * s / phi
	r2 := -k * k * e * c / phi
	r3 := k * k * k * e * s / phi
	r4 := k * k * k * k * e * c / phi

	l1 := r1
	l2 := r2 - r1*r1
	l3 := r3 - 3*r1*r2 + 2*r1*r1*r1
	l4 := r4 - 4*r1*r3 - 3*r2*r2 + 12*r1*r1*r2 - 6*r1*r1*r1*r1

	return values{
		u:    -2 * nu * l1,
		ux:   -2 * nu * l2,
		uxx:  -2 * nu * l3,
		uxxx: -2 * nu * l4,
		ut:   -2 * nu * nu * (r3 - r1*r2),
	}
}

// kdvValues evaluates the soliton u = A*sech^2(kappa*(x - c*t - x0)) with
// A = 3c/alpha and kappa = sqrt(c/beta)/2, the unique sech^2 profile that
// solves the equation for the configured coefficients.
func (p *Provider) kdvValues(x, t float64) values {
	amp := 3 * p.waveSpeed / p.advection
	kappa := 0.5 * math.Sqrt(p.waveSpeed/p.dispersion)
	theta := kappa * (x - p.waveSpeed*t - p.center)

	sech := 1 / math.Cosh(theta)
	s2 := sech * sech
	tnh := math.Tanh(theta)

	return values{
		u:    amp * s2,
		ux:   -2 * amp * kappa * s2 * tnh,
		uxx:  amp * kappa * kappa * (4*s2*tnh*tnh - 2*s2*s2),
		uxxx: amp * kappa * kappa * kappa * (16*s2*s2*tnh - 8*s2*tnh*tnh*tnh),
		ut:   2 * amp * p.waveSpeed * kappa * s2 * tnh,
	}
}
