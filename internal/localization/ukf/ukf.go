// Package ukf implements an unscented Kalman filter over a ground pose
// (x, y, heading). It is the numerical primitive behind every pose
// hypothesis: sigma point generation, odometry prediction and three
// observation models (full pose, one translational axis plus heading, and a
// known field point seen relative to the robot).
//
// Sigma points are {mean, mean ± column_i(L)} with L the Cholesky factor of
// the covariance. Means are recombined with equal weights (headings
// circularly) and covariances as 0.5·Σ of wrapped residual outer products,
// so regenerating points from a fresh state reproduces it exactly.
package ukf

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/fieldpose/internal/geom"
	"gonum.org/v1/gonum/mat"
)

const (
	// Dim is the state dimension: x, y, heading.
	Dim = 3
	// NumSigmaPoints is 2·Dim+1.
	NumSigmaPoints = 2*Dim + 1

	headingIndex = 2

	// minVariance keeps a degenerate covariance factorable.
	minVariance = 1e-9
)

var (
	// ErrNotFinite is returned when an update would produce NaN/Inf; the
	// filter state is left unchanged.
	ErrNotFinite = errors.New("ukf: update produced non-finite state")
	// ErrSingular is returned when the innovation covariance cannot be inverted.
	ErrSingular = errors.New("ukf: innovation covariance not positive definite")
)

// Axis selects the translational component constrained by a 1D update.
type Axis int

const (
	AxisX Axis = 0
	AxisY Axis = 1
)

// SigmaPoint is one sample of the state distribution.
type SigmaPoint [Dim]float64

// Pose returns the sample as a pose value.
func (s SigmaPoint) Pose() geom.Pose2D { return geom.Pose2D{X: s[0], Y: s[1], Rotation: s[2]} }

// Pose2D is the filter state: mean and symmetric covariance.
type Pose2D struct {
	Mean *mat.VecDense
	Cov  *mat.SymDense
}

// New creates a filter state. cov must be 3×3; it is copied.
func New(mean geom.Pose2D, cov mat.Symmetric) Pose2D {
	f := Pose2D{
		Mean: mat.NewVecDense(Dim, []float64{mean.X, mean.Y, geom.NormalizeAngle(mean.Rotation)}),
		Cov:  mat.NewSymDense(Dim, nil),
	}
	f.Cov.CopySym(cov)
	return f
}

// NewDiagonal creates a filter state with independent per-axis variances.
func NewDiagonal(mean geom.Pose2D, varX, varY, varRot float64) Pose2D {
	return New(mean, Diag(varX, varY, varRot))
}

// Diag builds a diagonal symmetric matrix.
func Diag(values ...float64) *mat.SymDense {
	m := mat.NewSymDense(len(values), nil)
	for i, v := range values {
		m.SetSym(i, i, v)
	}
	return m
}

// Clone returns a deep copy.
func (f Pose2D) Clone() Pose2D {
	return New(f.MeanPose(), f.Cov)
}

// MeanPose returns the mean as a pose.
func (f Pose2D) MeanPose() geom.Pose2D {
	return geom.Pose2D{X: f.Mean.AtVec(0), Y: f.Mean.AtVec(1), Rotation: f.Mean.AtVec(headingIndex)}
}

// SigmaPoints regenerates the 2n+1 sigma points from the current state.
func (f Pose2D) SigmaPoints() [NumSigmaPoints]SigmaPoint {
	l := f.factor()
	var pts [NumSigmaPoints]SigmaPoint
	for k := 0; k < Dim; k++ {
		pts[0][k] = f.Mean.AtVec(k)
	}
	for i := 0; i < Dim; i++ {
		for k := 0; k < Dim; k++ {
			pts[1+i][k] = pts[0][k] + l.At(k, i)
			pts[1+Dim+i][k] = pts[0][k] - l.At(k, i)
		}
		pts[1+i][headingIndex] = geom.NormalizeAngle(pts[1+i][headingIndex])
		pts[1+Dim+i][headingIndex] = geom.NormalizeAngle(pts[1+Dim+i][headingIndex])
	}
	return pts
}

// factor returns the lower Cholesky factor of the covariance, falling back
// to the square roots of the clamped diagonal when the matrix has lost
// positive definiteness.
func (f Pose2D) factor() mat.Matrix {
	var chol mat.Cholesky
	if chol.Factorize(f.Cov) {
		var l mat.TriDense
		chol.LTo(&l)
		return &l
	}
	d := mat.NewDiagDense(Dim, nil)
	for i := 0; i < Dim; i++ {
		d.SetDiag(i, math.Sqrt(math.Max(f.Cov.At(i, i), minVariance)))
	}
	return d
}

// Recombine computes mean and covariance of a set of sigma points.
func Recombine(pts [NumSigmaPoints]SigmaPoint) (SigmaPoint, *mat.SymDense) {
	var mean SigmaPoint
	var sinSum, cosSum float64
	for _, p := range pts {
		mean[0] += p[0]
		mean[1] += p[1]
		s, c := math.Sincos(p[headingIndex])
		sinSum += s
		cosSum += c
	}
	mean[0] /= NumSigmaPoints
	mean[1] /= NumSigmaPoints
	mean[headingIndex] = math.Atan2(sinSum, cosSum)

	cov := mat.NewSymDense(Dim, nil)
	for _, p := range pts {
		r := residual(p[:], mean[:], headingIndex)
		for i := 0; i < Dim; i++ {
			for j := i; j < Dim; j++ {
				cov.SetSym(i, j, cov.At(i, j)+0.5*r[i]*r[j])
			}
		}
	}
	return mean, cov
}

// OdometryPredict moves every sigma point by delta expressed in the
// point's own frame, recombines, and adds process noise. filterNoise is
// added per axis unconditionally; noiseFraction² scaled by the magnitude of
// the per-axis odometry grows the uncertainty with the motion.
func (f *Pose2D) OdometryPredict(delta geom.Pose2D, filterNoise, noiseFraction [Dim]float64) {
	pts := f.SigmaPoints()
	step := delta.Translation()
	for i := range pts {
		moved := step.Rotate(pts[i][headingIndex])
		pts[i][0] += moved.X
		pts[i][1] += moved.Y
		pts[i][headingIndex] = geom.NormalizeAngle(pts[i][headingIndex] + delta.Rotation)
	}
	mean, cov := Recombine(pts)

	magnitude := [Dim]float64{math.Abs(delta.X), math.Abs(delta.Y), math.Abs(delta.Rotation)}
	for i := 0; i < Dim; i++ {
		cov.SetSym(i, i, cov.At(i, i)+filterNoise[i]+noiseFraction[i]*noiseFraction[i]*magnitude[i])
	}

	f.setMean(mean)
	f.Cov.CopySym(cov)
	f.symmetrize()
}

// PoseSensorUpdate fuses a full pose observation.
func (f *Pose2D) PoseSensorUpdate(obs geom.Pose2D, obsCov mat.Symmetric) error {
	if obsCov.SymmetricDim() != Dim {
		return fmt.Errorf("ukf: pose observation covariance must be %dx%d", Dim, Dim)
	}
	return f.update(
		[]float64{obs.X, obs.Y, geom.NormalizeAngle(obs.Rotation)},
		obsCov,
		func(p SigmaPoint) []float64 { return []float64{p[0], p[1], p[headingIndex]} },
		headingIndex,
	)
}

// Pose1DSensorUpdate fuses an observation of one translational coordinate
// plus the heading, e.g. from a line parallel to a field axis.
func (f *Pose2D) Pose1DSensorUpdate(position, heading float64, axis Axis, obsCov mat.Symmetric) error {
	if obsCov.SymmetricDim() != 2 {
		return errors.New("ukf: 1D pose observation covariance must be 2x2")
	}
	if axis != AxisX && axis != AxisY {
		return fmt.Errorf("ukf: invalid axis %d", axis)
	}
	return f.update(
		[]float64{position, geom.NormalizeAngle(heading)},
		obsCov,
		func(p SigmaPoint) []float64 { return []float64{p[axis], p[headingIndex]} },
		1,
	)
}

// FieldPointUpdate fuses the robot-relative observation of a landmark with
// known field position.
func (f *Pose2D) FieldPointUpdate(relative, landmark geom.Vector2, obsCov mat.Symmetric) error {
	if obsCov.SymmetricDim() != 2 {
		return errors.New("ukf: field point observation covariance must be 2x2")
	}
	return f.update(
		[]float64{relative.X, relative.Y},
		obsCov,
		func(p SigmaPoint) []float64 {
			rel := p.Pose().ToLocal(landmark)
			return []float64{rel.X, rel.Y}
		},
		-1,
	)
}

// update performs the unscented correction for observation model h. The
// observation component at angleIdx (if >= 0) is treated as an angle.
func (f *Pose2D) update(obs []float64, obsCov mat.Symmetric, h func(SigmaPoint) []float64, angleIdx int) error {
	m := len(obs)
	pts := f.SigmaPoints()

	var zs [NumSigmaPoints][]float64
	zMean := make([]float64, m)
	var sinSum, cosSum float64
	for i, p := range pts {
		zs[i] = h(p)
		for k := 0; k < m; k++ {
			if k == angleIdx {
				s, c := math.Sincos(zs[i][k])
				sinSum += s
				cosSum += c
				continue
			}
			zMean[k] += zs[i][k] / NumSigmaPoints
		}
	}
	if angleIdx >= 0 {
		zMean[angleIdx] = math.Atan2(sinSum, cosSum)
	}

	mean := make([]float64, Dim)
	for k := range mean {
		mean[k] = f.Mean.AtVec(k)
	}

	pzz := mat.NewSymDense(m, nil)
	pxz := mat.NewDense(Dim, m, nil)
	for i := range pts {
		dz := residual(zs[i], zMean, angleIdx)
		dx := residual(pts[i][:], mean, headingIndex)
		for a := 0; a < m; a++ {
			for b := a; b < m; b++ {
				pzz.SetSym(a, b, pzz.At(a, b)+0.5*dz[a]*dz[b])
			}
			for r := 0; r < Dim; r++ {
				pxz.Set(r, a, pxz.At(r, a)+0.5*dx[r]*dz[a])
			}
		}
	}

	s := mat.NewSymDense(m, nil)
	s.AddSym(pzz, obsCov)

	var chol mat.Cholesky
	if !chol.Factorize(s) {
		return ErrSingular
	}
	// K = Pxz·S⁻¹, computed as (S⁻¹·Pxzᵀ)ᵀ.
	var kt mat.Dense
	if err := chol.SolveTo(&kt, pxz.T()); err != nil {
		return fmt.Errorf("ukf: kalman gain: %w", err)
	}
	k := kt.T()

	innovation := mat.NewVecDense(m, residual(obs, zMean, angleIdx))
	var correction mat.VecDense
	correction.MulVec(k, innovation)

	var ksk mat.Dense
	ksk.Product(k, s, &kt)

	prevMean := mat.VecDenseCopyOf(f.Mean)
	prevCov := mat.NewSymDense(Dim, nil)
	prevCov.CopySym(f.Cov)

	f.Mean.AddVec(f.Mean, &correction)
	f.Mean.SetVec(headingIndex, geom.NormalizeAngle(f.Mean.AtVec(headingIndex)))
	for i := 0; i < Dim; i++ {
		for j := i; j < Dim; j++ {
			f.Cov.SetSym(i, j, f.Cov.At(i, j)-0.5*(ksk.At(i, j)+ksk.At(j, i)))
		}
	}
	f.symmetrize()

	if !f.finite() {
		f.Mean = prevMean
		f.Cov = prevCov
		return ErrNotFinite
	}
	return nil
}

func (f *Pose2D) setMean(m SigmaPoint) {
	f.Mean.SetVec(0, m[0])
	f.Mean.SetVec(1, m[1])
	f.Mean.SetVec(headingIndex, geom.NormalizeAngle(m[headingIndex]))
}

// symmetrize guards the covariance after a mutation. SymDense stores a
// single triangle, so symmetry itself is structural; the remaining drift
// guard keeps variances from going non-positive.
func (f *Pose2D) symmetrize() {
	for i := 0; i < Dim; i++ {
		if f.Cov.At(i, i) < minVariance {
			f.Cov.SetSym(i, i, minVariance)
		}
	}
}

func (f *Pose2D) finite() bool {
	for i := 0; i < Dim; i++ {
		if v := f.Mean.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		for j := 0; j < Dim; j++ {
			if v := f.Cov.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// residual returns a - b with the component at angleIdx wrapped.
func residual(a, b []float64, angleIdx int) []float64 {
	r := make([]float64, len(a))
	for i := range a {
		r[i] = a[i] - b[i]
		if i == angleIdx {
			r[i] = geom.NormalizeAngle(r[i])
		}
	}
	return r
}
